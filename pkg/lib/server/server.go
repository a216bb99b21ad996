package server

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/wanko/clingo/pkg/lib/profile"
)

// Option applies a configuration option to the given config.
type Option func(s *serverConfig)

// GetListenAndServeFunc returns a function serving health, metrics, and
// optionally profiling endpoints.
func GetListenAndServeFunc(options ...Option) (func() error, error) {
	sc := defaultServerConfig()
	sc.apply(options)

	return sc.getListenAndServeFunc()
}

func WithAddress(address string) Option {
	return func(sc *serverConfig) {
		sc.address = address
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(sc *serverConfig) {
		sc.logger = logger
	}
}

func WithDebug(debug bool) Option {
	return func(sc *serverConfig) {
		sc.debug = debug
	}
}

type serverConfig struct {
	logger  *logrus.Logger
	address string
	debug   bool
}

func (sc *serverConfig) apply(options []Option) {
	for _, o := range options {
		o(sc)
	}
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		address: ":8080",
		logger:  nil,
		debug:   false,
	}
}

func (sc serverConfig) newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())
	if sc.debug {
		profile.RegisterHandlers(mux)
	}
	return mux
}

func (sc serverConfig) getListenAndServeFunc() (func() error, error) {
	if sc.address == "" {
		return nil, errors.New("server address must not be empty")
	}
	if sc.logger == nil {
		sc.logger = logrus.New()
	}

	s := http.Server{
		Handler: sc.newMux(),
		Addr:    sc.address,
	}

	sc.logger.Infof("serving metrics on %s", sc.address)
	return s.ListenAndServe, nil
}
