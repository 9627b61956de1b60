package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"time"

	"github.com/JiscSD/ram-relationships/api"
	"github.com/JiscSD/ram-relationships/archive"
	"github.com/JiscSD/ram-relationships/model"
	"github.com/JiscSD/ram-relationships/notify"
	"github.com/JiscSD/ram-relationships/party"
	"github.com/JiscSD/ram-relationships/registry"
	"github.com/JiscSD/ram-relationships/relationship"
	"github.com/JiscSD/ram-relationships/store"
	"github.com/JiscSD/ram-relationships/version"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var eventTypes = []notify.EventType{
	notify.EventDelegateNotified,
	notify.EventAcceptedRelationship,
	notify.EventDeclinedRelationship,
	notify.EventCancelledRelationship,
	notify.EventSavedRelationship,
	notify.EventDeletedRelationship,
	notify.EventPartyPurged,
}

func NewCmdServer(logger logrus.FieldLogger, config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the application server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.WithFields(logrus.Fields{"version": version.VERSION, "commit": version.COMMIT}).Info("Starting server...")
			return doServer(logger, config)
		},
	}
}

func doServer(logger logrus.FieldLogger, config *Config) error {
	app, err := server(logger, config, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer app.registry.Stop()

	var g run.Group
	{
		ln, err := net.Listen("tcp", config.Server.Addr)
		if err != nil {
			return err
		}
		logger.WithField("addr", ln.Addr().String()).Info("API server listening")

		srv := &http.Server{Handler: app.handler, ReadHeaderTimeout: 10 * time.Second}
		g.Add(func() error {
			if err := srv.Serve(ln); err != http.ErrServerClosed {
				return err
			}
			return nil
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			srv.Shutdown(ctx)
		})
	}
	{
		ln, err := net.Listen("tcp", config.Server.MetricsAddr)
		if err != nil {
			return err
		}
		logger.WithField("addr", ln.Addr().String()).Info("HTTP server listening")

		g.Add(func() error {
			mux := http.NewServeMux()

			// Health check.
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				fmt.Fprintln(w, "OK")
			})

			// Prometheus metrics.
			mux.Handle("/metrics", promhttp.Handler())

			// Profiling data.
			mux.HandleFunc("/debug/pprof/", pprof.Index)
			mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
			mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
			mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
			mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
			mux.Handle("/debug/pprof/block", pprof.Handler("block"))
			mux.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
			mux.Handle("/debug/pprof/heap", pprof.Handler("heap"))
			mux.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))

			return http.Serve(ln, mux)
		}, func(error) {
			ln.Close()
		})
	}
	{
		cancel := make(chan struct{})

		g.Add(func() error {
			err := interrupt(cancel, app.registry)
			logger.Warn("Shutting down...")
			return err
		}, func(error) {
			close(cancel)
		})
	}

	return g.Run()
}

type application struct {
	handler  http.Handler
	registry *registry.Registry
	metrics  *metrics
}

type metrics struct {
	requests *prometheus.CounterVec
	events   *prometheus.CounterVec
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ram_relationships",
			Name:      "http_requests_total",
			Help:      "The total number of API requests served.",
		}, []string{"code", "method"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ram_relationships",
			Name:      "events_total",
			Help:      "The total number of lifecycle events emitted.",
		}, []string{"type"}),
	}
	registerer.MustRegister(m.requests, m.events)
	return m
}

// count subscribes the event counter to every event type.
func (m *metrics) count(p *notify.Publisher) {
	for _, t := range eventTypes {
		counter := m.events.WithLabelValues(string(t))
		p.Subscribe(t, func(context.Context, notify.Event) error {
			counter.Inc()
			return nil
		})
	}
}

func server(logger logrus.FieldLogger, config *Config, registerer prometheus.Registerer) (*application, error) {
	m := newMetrics(registerer)

	var (
		parties       store.PartyStore
		relationships store.RelationshipStore
		agencies      store.AgencyStore
	)
	switch config.Store.Backend {
	case backendDynamoDB:
		sess, err := awsSession(logger, config.AWS.DynamoDBProfile, config.AWS.DynamoDBEndpoint)
		if err != nil {
			return nil, err
		}
		dynamodbClient := dynamodb.New(sess)
		parties = store.NewPartyStoreDynamoDB(dynamodbClient, config.Store.PartyTable, config.Store.IdentityTable)
		relationships = store.NewRelationshipStoreDynamoDB(dynamodbClient, config.Store.RelationshipTable)
		agencies = store.NewAgencyStoreDynamoDB(dynamodbClient, config.Store.AgencyTable)
	default:
		logger.Warn("Using the memory store, data will not survive a restart")
		seed := make([]model.Agency, len(config.Agencies))
		for i, a := range config.Agencies {
			seed[i] = a.agency()
		}
		parties = store.NewMemoryPartyStore()
		relationships = store.NewMemoryRelationshipStore()
		agencies = store.NewMemoryAgencyStore(seed...)
	}

	var agencyRegistry *registry.Registry
	{
		var err error
		agencyRegistry, err = registry.New(logger.WithField("component", "registry"), agencies, config.Registry.ReloadFrequency)
		if err != nil {
			return nil, err
		}
	}

	var notifier *notify.Publisher
	{
		var snsClient snsiface.SNSAPI
		if config.Notifications.TopicARN != "" {
			sess, err := awsSession(logger, config.AWS.SNSProfile, config.AWS.SNSEndpoint)
			if err != nil {
				agencyRegistry.Stop()
				return nil, err
			}
			snsClient = sns.New(sess)
		} else {
			logger.Warn("Notifications topic is not configured, events will not be published")
		}
		notifier = notify.New(logger.WithField("component", "notify"), snsClient, config.Notifications.TopicARN)
		m.count(notifier)
	}

	var storage archive.ObjectStorage
	{
		sess, err := awsSession(logger, config.AWS.S3Profile, config.AWS.S3Endpoint)
		if err != nil {
			agencyRegistry.Stop()
			return nil, err
		}
		storage = archive.New(sess, config.Archive.Bucket)
	}

	relationshipService := relationship.New(
		logger, parties, relationships, agencyRegistry, notifier, nil,
		relationship.Config{
			InvitationExpiryDays: config.Invitation.ExpiryDays,
			InvitationCodeLength: config.Invitation.CodeLength,
		})
	partyService := party.New(logger, parties, relationships, storage, notifier)

	handler := promhttp.InstrumentHandlerCounter(m.requests, api.New(logger, relationshipService, partyService))

	return &application{handler: handler, registry: agencyRegistry, metrics: m}, nil
}

type logrusProxy struct {
	logger logrus.FieldLogger
}

func (l logrusProxy) Log(args ...interface{}) {
	l.logger.WithField("client", "aws").Debug(args...)
}

// awsSession returns a session using NewSessionWithOptions meaning that it
// relies on the SDK defaults but also the user config files and environment.
//
// AWS_S3_FORCE_PATH_STYLE is not an SDK variable. It is read here so local
// S3 replacements can be used without more configuration.
func awsSession(logger logrus.FieldLogger, profile, endpoint string) (*session.Session, error) {
	options := session.Options{}
	if profile != "" {
		options.Profile = profile
	}
	if endpoint != "" {
		options.Config.WithEndpoint(endpoint)
	}
	if res, ok := os.LookupEnv("AWS_S3_FORCE_PATH_STYLE"); ok {
		enabled, _ := strconv.ParseBool(res)
		options.Config.WithS3ForcePathStyle(enabled)
	}
	if logrus.GetLevel() == logrus.DebugLevel {
		options.Config.WithCredentialsChainVerboseErrors(true)
	}
	options.Config.WithLogger(logrusProxy{logger: logger})
	return session.NewSessionWithOptions(options)
}
