package core

import (
	"math"
	"net/mail"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

const (
	DateLayout = "2006-01-02"

	// MaxID is the largest subject/course ID: the portal stores IDs as INTEGER.
	MaxID = math.MaxInt32
)

var (
	// custom validation tags & texts
	isoDateTag  = "isodate"
	isoDateText = "must be a calendar date formatted as YYYY-MM-DD"

	descriptorTag  = "descriptor"
	descriptorText = "must be a non-empty list of finite numbers"

	idTag  = "dbid"
	idText = "must be a positive integer up to 2147483647"

	notifyAddrTag  = "notifyaddr"
	notifyAddrText = "must be an email address or an international phone number (+243...)"
	phoneRegex     = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// NewValidator returns a validator initialized with the global validators and an english translator.
func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")

	validate := validator.New()
	InitValidators(validate, translator)
	return validate, translator
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(isoDateTag, isoDateValidation)
	RegisterCustomTranslation(validate, translator, isoDateTag, isoDateText)

	_ = validate.RegisterValidation(descriptorTag, descriptorValidation)
	RegisterCustomTranslation(validate, translator, descriptorTag, descriptorText)

	_ = validate.RegisterValidation(idTag, idValidation)
	RegisterCustomTranslation(validate, translator, idTag, idText)

	_ = validate.RegisterValidation(notifyAddrTag, notifyAddrValidation)
	RegisterCustomTranslation(validate, translator, notifyAddrTag, notifyAddrText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// TranslateErrors converts validator errors into FieldErrors keyed by JSON field names.
func TranslateErrors(errs validator.ValidationErrors, translator ut.Translator) []FieldError {
	flds := make([]FieldError, 0, len(errs))
	for _, vErr := range errs {
		flds = append(flds, FieldError{Field: fieldPath(vErr), Error: vErr.Translate(translator)})
	}
	return flds
}

// fieldPath drops the root struct name from the namespace: "bulkRequest.records[0].status" -> "records[0].status".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 && strings.ContainsRune(ns, '[') {
		return ns[idx+1:]
	}
	return fe.Field()
}

// Custom Global Validators

// isoDateValidation only allows calendar dates without a time component.
func isoDateValidation(fl validator.FieldLevel) bool {
	_, err := time.Parse(DateLayout, fl.Field().String())
	return err == nil
}

// descriptorValidation checks that a float slice is non-empty and contains no NaN or Inf values.
func descriptorValidation(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.Slice && field.Kind() != reflect.Array {
		return false
	}
	if field.Len() == 0 {
		return false
	}
	for i := 0; i < field.Len(); i++ {
		elem := field.Index(i)
		if elem.Kind() != reflect.Float32 && elem.Kind() != reflect.Float64 {
			return false
		}
		if f := elem.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func idValidation(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return ValidID(fl.Field().Int())
	}
	return false
}

func notifyAddrValidation(fl validator.FieldLevel) bool {
	return ValidNotifyAddress(fl.Field().String())
}

// ValidID reports whether id fits the portal's ID columns.
func ValidID(id int64) bool { return id > 0 && id <= MaxID }

// ValidNotifyAddress allows e-mail addresses and E.164 phone numbers (messaging channels).
func ValidNotifyAddress(addr string) bool {
	if phoneRegex.MatchString(addr) {
		return true
	}
	parsed, err := mail.ParseAddress(addr)
	return err == nil && parsed.Address == addr
}
