package main

import (
	"context"
	"fmt"
	"io"
	"os"

	domainauth "github.com/NordCoder/Crabiner/internal/domain/auth"
	"github.com/NordCoder/Crabiner/internal/repository/kafka"
	"go.uber.org/zap"
)

func tailEvents(ctx context.Context, brokers []string, topic string, w io.Writer, l *zap.Logger) error {
	host, _ := os.Hostname()
	cons := kafka.BootstrapConsumer(ctx, &kafka.ConsumerConfig{
		Brokers: brokers,
		GroupID: "authctl-" + host,
		Topic:   topic,
		Logger:  l,
	}, l)
	defer func() { _ = cons.Close() }()

	return cons.Consume(ctx, kafka.JSONHandler(func(_ context.Context, _ []byte, ev domainauth.Event) error {
		return printEvent(w, ev)
	}))
}

func printEvent(w io.Writer, ev domainauth.Event) error {
	line := fmt.Sprintf("%s %-24s subject=%s", ev.At.Format("2006-01-02T15:04:05Z07:00"), ev.Kind, ev.SubjectID)
	if ev.CredentialID != nil {
		line += " credential=" + ev.CredentialID.String()
	}
	if ev.Reason != "" {
		line += " reason=" + ev.Reason
	}
	if ev.Count > 0 {
		line += fmt.Sprintf(" count=%d", ev.Count)
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
