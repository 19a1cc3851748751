// guildhall-admin runs operator tasks against a Guildhall database:
// migrations, catalog seeding, system-group bootstrap, and the
// retention sweeps, without standing up the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/authz"
	"github.com/guildhall-io/guildhall/pkg/catalog"
	"github.com/guildhall-io/guildhall/pkg/config"
	"github.com/guildhall-io/guildhall/pkg/groups"
	"github.com/guildhall-io/guildhall/pkg/membership"
	"github.com/guildhall-io/guildhall/pkg/storage"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: guildhall-admin <command> [flags]

Commands:
  migrate     Run database migrations
  seed        Apply the permission catalog (built-in or --file)
  bootstrap   Create the system groups
  sweep       Delete expired invitations and aged audit entries
`)
	os.Exit(2)
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if len(os.Args) < 2 {
		usage()
	}
	command := os.Args[1]

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	seedFile := flags.String("file", "", "YAML catalog seed file; empty uses the built-in catalog")
	_ = flags.Parse(os.Args[2:])

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := storage.Connect(ctx, cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer db.Close()

	switch command {
	case "migrate":
		if err := storage.RunMigrations(ctx, db); err != nil {
			log.WithError(err).Fatal("migrations failed")
		}
		log.Info("migrations complete")

	case "seed":
		seed := catalog.DefaultSeed()
		if *seedFile != "" {
			if seed, err = catalog.LoadSeedFile(*seedFile); err != nil {
				log.WithError(err).Fatal("failed to load seed file")
			}
		}
		if err := catalog.NewPostgresStore(db).Apply(ctx, seed); err != nil {
			log.WithError(err).Fatal("failed to apply catalog seed")
		}
		log.WithField("categories", len(seed.Categories)).Info("catalog applied")

	case "bootstrap":
		if err := groups.NewPostgresService(db).BootstrapSystemGroups(ctx); err != nil {
			log.WithError(err).Fatal("failed to bootstrap system groups")
		}
		log.Info("system groups ready")

	case "sweep":
		memberships := membership.NewPostgresService(db, authz.NewGuards(nil))
		deleted, err := memberships.CleanupExpiredInvitations(ctx, cfg.Engine.InvitationExpiry)
		if err != nil {
			log.WithError(err).Fatal("invitation sweep failed")
		}
		log.WithField("deleted", deleted).Info("expired invitations removed")

		auditLogger, err := audit.NewDBLogger(db)
		if err != nil {
			log.WithError(err).Fatal("failed to open audit log")
		}
		cutoff := time.Now().UTC().Add(-cfg.Engine.AuditRetention)
		purged, err := auditLogger.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			log.WithError(err).Fatal("audit retention sweep failed")
		}
		log.WithFields(logrus.Fields{"deleted": purged, "cutoff": cutoff.Format(time.RFC3339)}).Info("audit entries purged")

	default:
		usage()
	}
}
