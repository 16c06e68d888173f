package main

import (
	"context"
	"log"
	"os"

	"github.com/yarcoin/marketplace/apps/shared"
	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/account"
	"github.com/yarcoin/marketplace/core/bidding"
	"github.com/yarcoin/marketplace/core/student"
	"github.com/yarcoin/marketplace/core/teacher"
	"github.com/yarcoin/marketplace/core/user"
	"github.com/yarcoin/marketplace/services/email"
	"github.com/yarcoin/marketplace/services/filestore"
	"github.com/yarcoin/marketplace/services/logger"
)

func main() {
	conf := core.NewConfig()
	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("building zap logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl, conf)

	// set up backend
	backend, err := shared.OpenBackend(context.Background(), conf, logger, false /* migrate */)
	if err != nil {
		logger.Close()
		log.Fatalf("%+v", err)
	}

	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(logger)

	usrSvc := user.NewService(backend.Users, emailsvc.NewConsoleService(logger, conf), conf)
	stSvc := student.NewService(backend.Tx, backend.Students, backend.Bids, filestore.NewLocal(conf.Server.MediaDir), conf)
	tchrSvc := teacher.NewService(backend.Teachers, conf)

	// start CLI
	cli := commandLine{
		db:       backend.DB,
		validate: validate,
		usrSvc:   usrSvc,
		acctSvc:  account.NewService(backend.Tx, usrSvc, stSvc, tchrSvc),
		bidSvc:   bidding.NewService(backend.Tx, backend.Locker, backend.Bids, backend.Students, backend.Teachers),
		out:      os.Stdout,
	}
	err = cli.run(os.Args)

	if cerr := backend.Close(); cerr != nil {
		logger.Error("closing backend", cerr)
	}
	logger.Close()
	if err != nil {
		if err != errHelp {
			log.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
