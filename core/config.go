package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	Engine        string
	Host          string
	Port          string
	Name          string
	User          string
	Password      string
	AdminUser     string
	AdminPassword string
	DisableTLS    bool
}

// Address returns the database "host:port".
func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, db.Port)
}

type Config struct {
	AppName        string
	Env            string // DEV (local; default), TEST, QA, PROD
	Build          string
	Debug          bool
	TestMode       bool
	WorkDir        string
	RollbarToken   string
	SendgridAPIKey string

	defaultFromEmail string

	Server struct {
		Host            string
		DebugHost       string
		APIKey          string // shared device key; empty disables key auth
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
	}

	Database DatabaseConfig

	Kiosk struct {
		DeviceID     string
		DataPath     string
		TickInterval time.Duration
	}

	Matching struct {
		Threshold float64
	}

	Enrollment struct {
		CountdownTicks   int
		MaxAttempts      int
		MinFaceRatio     float64
		MaxFaceRatio     float64
		IdealFaceRatio   float64
		MaxCenterOffset  float64
		SizeWeight       float64
		ConfidenceWeight float64
		GoodEnough       float64
	}

	Sync struct {
		RemoteURL      string
		APIKey         string
		RequestTimeout time.Duration
		ProbeInterval  time.Duration
		RetryInterval  time.Duration
	}

	Notify struct {
		Provider   string // console | sendgrid | mqtt
		Timeout    time.Duration
		MQTTBroker string
		MQTTTopic  string
	}

	Face struct {
		ModelsDir string
	}

	Camera struct {
		SnapshotURL string
		ReplayDir   string
	}
}

const (
	defaultTickInterval  = 200 * time.Millisecond
	defaultProbeInterval = 10 * time.Second
	defaultRetryInterval = time.Minute
)

// NewConfig reads the configuration from the environment (and the optional `config/.env.<env>` file).
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("appName", "Hazira")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("defaultFromEmail", "Hazira <noreply@localhost>")

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.apiKey", "")
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 5*time.Second)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "hazira")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("kiosk.deviceId", "")
	v.SetDefault("kiosk.dataPath", "hazira.db")
	v.SetDefault("kiosk.tickInterval", defaultTickInterval)

	v.SetDefault("matching.threshold", 0.6)

	v.SetDefault("enrollment.countdownTicks", 3)
	v.SetDefault("enrollment.maxAttempts", 20)
	v.SetDefault("enrollment.minFaceRatio", 0.04)
	v.SetDefault("enrollment.maxFaceRatio", 0.5)
	v.SetDefault("enrollment.idealFaceRatio", 0.15)
	v.SetDefault("enrollment.maxCenterOffset", 0.2)
	v.SetDefault("enrollment.sizeWeight", 0.5)
	v.SetDefault("enrollment.confidenceWeight", 0.5)
	v.SetDefault("enrollment.goodEnough", 0.8)

	v.SetDefault("sync.remoteUrl", "http://localhost:8000")
	v.SetDefault("sync.apiKey", "")
	v.SetDefault("sync.requestTimeout", 15*time.Second)
	v.SetDefault("sync.probeInterval", defaultProbeInterval)
	v.SetDefault("sync.retryInterval", defaultRetryInterval)

	v.SetDefault("notify.provider", "console")
	v.SetDefault("notify.timeout", 10*time.Second)
	v.SetDefault("notify.mqttBroker", "localhost:1883")
	v.SetDefault("notify.mqttTopic", "hazira/notifications")

	v.SetDefault("face.modelsDir", "models")
	v.SetDefault("camera.snapshotUrl", "")
	v.SetDefault("camera.replayDir", "")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		WorkDir:          workDir,
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridAPIKey:   v.GetString("sendgridApiKey"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
	}

	conf.Server.Host = v.GetString("server.host")
	conf.Server.DebugHost = v.GetString("server.debugHost")
	conf.Server.APIKey = v.GetString("server.apiKey")
	conf.Server.ReadTimeout = v.GetDuration("server.readTimeout")
	conf.Server.WriteTimeout = v.GetDuration("server.writeTimeout")
	conf.Server.ShutdownTimeout = v.GetDuration("server.shutdownTimeout")

	conf.Database.Engine = v.GetString("database.engine")
	conf.Database.Host = v.GetString("database.host")
	conf.Database.Port = v.GetString("database.port")
	conf.Database.Name = v.GetString("database.name")
	conf.Database.User = v.GetString("database.user")
	conf.Database.Password = v.GetString("database.password")
	conf.Database.AdminUser = v.GetString("database.adminUser")
	conf.Database.AdminPassword = v.GetString("database.adminPassword")
	conf.Database.DisableTLS = v.GetBool("database.disableTLS")

	conf.Kiosk.DeviceID = v.GetString("kiosk.deviceId")
	conf.Kiosk.DataPath = v.GetString("kiosk.dataPath")
	conf.Kiosk.TickInterval = positiveDuration(v, "kiosk.tickInterval", defaultTickInterval)

	conf.Matching.Threshold = v.GetFloat64("matching.threshold")

	conf.Enrollment.CountdownTicks = v.GetInt("enrollment.countdownTicks")
	conf.Enrollment.MaxAttempts = v.GetInt("enrollment.maxAttempts")
	conf.Enrollment.MinFaceRatio = v.GetFloat64("enrollment.minFaceRatio")
	conf.Enrollment.MaxFaceRatio = v.GetFloat64("enrollment.maxFaceRatio")
	conf.Enrollment.IdealFaceRatio = v.GetFloat64("enrollment.idealFaceRatio")
	conf.Enrollment.MaxCenterOffset = v.GetFloat64("enrollment.maxCenterOffset")
	conf.Enrollment.SizeWeight = v.GetFloat64("enrollment.sizeWeight")
	conf.Enrollment.ConfidenceWeight = v.GetFloat64("enrollment.confidenceWeight")
	conf.Enrollment.GoodEnough = v.GetFloat64("enrollment.goodEnough")

	conf.Sync.RemoteURL = v.GetString("sync.remoteUrl")
	conf.Sync.APIKey = v.GetString("sync.apiKey")
	conf.Sync.RequestTimeout = v.GetDuration("sync.requestTimeout")
	conf.Sync.ProbeInterval = positiveDuration(v, "sync.probeInterval", defaultProbeInterval)
	conf.Sync.RetryInterval = positiveDuration(v, "sync.retryInterval", defaultRetryInterval)

	conf.Notify.Provider = v.GetString("notify.provider")
	conf.Notify.Timeout = v.GetDuration("notify.timeout")
	conf.Notify.MQTTBroker = v.GetString("notify.mqttBroker")
	conf.Notify.MQTTTopic = v.GetString("notify.mqttTopic")

	conf.Face.ModelsDir = v.GetString("face.modelsDir")
	conf.Camera.SnapshotURL = v.GetString("camera.snapshotUrl")
	conf.Camera.ReplayDir = v.GetString("camera.replayDir")

	return conf
}

// DefaultFromEmail parses the configured sender address, falling back to a bare noreply address.
func (conf *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(conf.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: conf.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

func (conf *Config) IsProd() bool { return conf.Env == "PROD" }

// positiveDuration reads a ticker interval, falling back to def when it is not positive.
func positiveDuration(v *viper.Viper, key string, def time.Duration) time.Duration {
	if d := v.GetDuration(key); d > 0 {
		return d
	}
	return def
}
