package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"wisdomwalk/config"
)

func NewCassandraSession(cfg config.DB) (*gocql.Session, error) {
	hosts := strings.Split(cfg.Host, ",")
	clusterConfig := gocql.NewCluster(hosts...)
	if cfg.Username != "" {
		clusterConfig.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	clusterConfig.Consistency = gocql.Quorum
	clusterConfig.SerialConsistency = gocql.LocalSerial
	clusterConfig.ConnectTimeout = time.Second * 10

	session, err := clusterConfig.CreateSession()
	if err != nil {
		return nil, err
	}

	err = session.Query(`CREATE KEYSPACE IF NOT EXISTS ` + cfg.Keyspace + ` WITH REPLICATION = {'class' : 'SimpleStrategy', 'replication_factor' : 1}`).Exec()
	if err != nil {
		return nil, err
	}
	session.Close()

	clusterConfig.Keyspace = cfg.Keyspace

	session, err = clusterConfig.CreateSession()
	if err != nil {
		return nil, err
	}

	if err = createTables(session, cfg.Keyspace); err != nil {
		return nil, err
	}

	return session, nil
}

func createTables(session *gocql.Session, keyspace string) error {
	for _, table := range dbTableSchemas {
		createTableCmd := fmt.Sprintf(table, keyspace)
		if err := session.Query(createTableCmd).Exec(); err != nil {
			return fmt.Errorf("failed to exec query for db table creation, CMD: %s: %w", createTableCmd, err)
		}
	}

	return nil
}
