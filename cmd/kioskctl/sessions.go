package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"

	redisstore "github.com/kmn/visitor-kiosk/internal/adapters/redis"
	domainauth "github.com/kmn/visitor-kiosk/internal/domain/auth"
)

const sessionScanBatch = 100

type sessionRow struct {
	ContextID string
	Session   *domainauth.Session
	TTL       time.Duration
}

func runListSessions(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	client, err := connectRedisOnly(cmdCtx)
	if err != nil {
		return err
	}
	defer closeRedis(cmdCtx, client)

	rows, err := scanSessions(ctx, client, cmdCtx.Config.Session.KeyPrefix)
	if err != nil {
		return err
	}
	return printSessions(rows, time.Now())
}

// scanSessions walks every slot under prefix. Records that fail to decode or
// have lapsed are cleared by the store and skipped.
func scanSessions(ctx context.Context, client redis.UniversalClient, prefix string) ([]sessionRow, error) {
	store := redisstore.NewSessionSlotStore(redisstore.SessionSlotStoreOptions{Client: client, Prefix: prefix})

	var rows []sessionRow
	iter := client.Scan(ctx, 0, prefix+"*", sessionScanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		contextID := strings.TrimPrefix(key, prefix)
		sess, err := store.Load(ctx, contextID)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		if sess == nil {
			continue
		}
		ttl, err := client.TTL(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("ttl %s: %w", key, err)
		}
		rows = append(rows, sessionRow{ContextID: contextID, Session: sess, TTL: ttl})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return rows, nil
}

func printSessions(rows []sessionRow, now time.Time) error {
	if len(rows) == 0 {
		return writeln(os.Stdout, "(no active sessions)")
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "CONTEXT\tNAME\tROLE\tREMAINING\tTTL"); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n",
			row.ContextID,
			row.Session.Identity.Name,
			row.Session.Identity.Role,
			row.Session.Remaining(now).Round(time.Second),
			renderTTL(row.TTL),
		); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush table: %w", err)
	}
	return writef(os.Stdout, "\nTotal sessions: %d\n", len(rows))
}

func runClearSession(cmdCtx *commandContext, args []string) error {
	opts, err := parseClearSessionFlags(args)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(clearSessionConfirmOptions{opts}, "sign out"); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	client, err := connectRedisOnly(cmdCtx)
	if err != nil {
		return err
	}
	defer closeRedis(cmdCtx, client)

	store := redisstore.NewSessionSlotStore(redisstore.SessionSlotStoreOptions{
		Client: client,
		Prefix: cmdCtx.Config.Session.KeyPrefix,
		Logger: cmdCtx.Logger,
	})
	if clearErr := store.Clear(ctx, opts.ContextID); clearErr != nil {
		return fmt.Errorf("clear session: %w", clearErr)
	}
	if cmdCtx.Config.Auth.RemoteCredentialEnabled {
		creds := redisstore.NewCredentialStore(client, cmdCtx.Config.Session.CredentialPrefix)
		if revokeErr := creds.Revoke(ctx, opts.ContextID); revokeErr != nil {
			return fmt.Errorf("revoke credential: %w", revokeErr)
		}
	}
	cmdCtx.Logger.Info("session cleared", "context", opts.ContextID)
	return nil
}

//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func connectRedisOnly(cmdCtx *commandContext) (redis.UniversalClient, error) {
	_, client, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantRedis: true,
	})
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("redis is not configured")
	}
	return client, nil
}

func closeRedis(cmdCtx *commandContext, client redis.UniversalClient) {
	if err := client.Close(); err != nil {
		cmdCtx.Logger.Warn("redis close failed", "error", err)
	}
}

func renderTTL(d time.Duration) string {
	switch {
	case d == -1:
		return "no expiry"
	case d < 0:
		return "expired"
	default:
		return d.Round(time.Second).String()
	}
}
