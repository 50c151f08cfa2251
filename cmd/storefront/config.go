package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	driverMySQL = "mysql"
	driverMongo = "mongo"
)

type config struct {
	ServeRESTAddress string `envconfig:"serve_rest_address" default:":8080"`
	ServeGRPCAddress string `envconfig:"serve_grpc_address" default:":8081"`

	StorageDriver     string        `envconfig:"storage_driver" default:"mysql"`
	DBDSN             string        `envconfig:"db_dsn"`
	DBMaxConn         int           `envconfig:"db_max_conn" default:"10"`
	DBConnMaxLifetime time.Duration `envconfig:"db_conn_max_lifetime" default:"1h"`
	MongoURI          string        `envconfig:"mongo_uri"`
	MongoDatabase     string        `envconfig:"mongo_database" default:"storefront"`

	AMQPURL      string `envconfig:"amqp_url"`
	AMQPExchange string `envconfig:"amqp_exchange" default:"storefront.events"`

	S3Bucket        string `envconfig:"s3_bucket"`
	S3Region        string `envconfig:"s3_region" default:"us-east-1"`
	S3Endpoint      string `envconfig:"s3_endpoint"`
	S3PublicBaseURL string `envconfig:"s3_public_base_url"`

	JWTSecret string `envconfig:"jwt_secret" required:"true"`

	IOTimeout         time.Duration `envconfig:"io_timeout" default:"10s"`
	ReconcileSchedule string        `envconfig:"reconcile_schedule" default:"@every 5m"`
	ReconcileTimeout  time.Duration `envconfig:"reconcile_timeout" default:"2m"`
	ReconcileRetries  uint64        `envconfig:"reconcile_retries" default:"2"`
	LogLevel          string        `envconfig:"log_level" default:"info"`
}

func parseEnv() (*config, error) {
	c := new(config)
	if err := envconfig.Process("", c); err != nil {
		return nil, errors.Wrap(err, "failed to parse env")
	}

	switch c.StorageDriver {
	case driverMySQL:
		if c.DBDSN == "" {
			return nil, errors.New("DB_DSN is required for the mysql storage driver")
		}
	case driverMongo:
		if c.MongoURI == "" {
			return nil, errors.New("MONGO_URI is required for the mongo storage driver")
		}
	default:
		return nil, errors.Errorf("unknown storage driver %q", c.StorageDriver)
	}

	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}
	log.SetLevel(level)
	return c, nil
}
