package echoapi

import (
	"context"
	"net/http"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/account"
	"github.com/yarcoin/marketplace/core/bidding"
	"github.com/yarcoin/marketplace/core/student"
	"github.com/yarcoin/marketplace/core/teacher"
	"github.com/yarcoin/marketplace/core/user"
	"github.com/yarcoin/marketplace/services/filestore"
	"github.com/yarcoin/marketplace/services/metrics"
)

type (
	Deps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Metrics    *metrics.Metrics

		UserSvc    *user.Service
		AccountSvc *account.Service
		StudentSvc *student.Service
		TeacherSvc *teacher.Service
		BiddingSvc *bidding.Service
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		address  string
		shutdown chan os.Signal
		deps     *Deps
		app      *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(address string, shutdown chan os.Signal, deps *Deps) Server {
	s := &server{
		address:  address,
		shutdown: shutdown,
		deps:     deps,
		app:      echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Binder = new(strictBinder)
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.Pre(middleware.RemoveTrailingSlash())
	if s.deps.Metrics != nil {
		s.app.Use(metricsMiddleware(s.deps.Metrics))
	}
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.GET("/", home)
	if s.deps.Metrics != nil {
		s.app.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))
	}
	s.app.Static(filestore.URLPrefix, conf.Server.MediaDir)

	jwt := middleware.JWTWithConfig(newJWTConfig(conf.SecretKey))
	limit := newRateLimiter(conf.Server.RateLimit, conf.Server.RateBurst).middleware()

	registerAccountAPI(s.app, jwt, limit, s.deps)

	api := s.app.Group("/api")
	registerStudentAPI(api, jwt, limit, s.deps)
	registerTeacherAPI(api, limit, s.deps)
	registerBiddingAPI(api, jwt, s.deps)
}

func (s *server) Start() error {
	return s.app.Start(s.address)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) signalShutdown() {
	if s.shutdown != nil {
		s.shutdown <- os.Interrupt
	}
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the YARCoin marketplace API!")
}
