package main

import (
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/hazira/core"
	logsvc "github.com/trezcool/hazira/services/logger"
	"github.com/trezcool/hazira/storage/database"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// start CLI
	cli := commandLine{
		conf: conf,
		out:  os.Stdout,
		openDB: func() (*sqlx.DB, error) {
			return database.Open(conf)
		},
	}
	err := cli.run(os.Args)
	cli.close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
