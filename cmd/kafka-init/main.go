package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/NordCoder/Crabiner/internal/obs"
	"github.com/NordCoder/Crabiner/internal/repository/kafka"
	"go.uber.org/zap"
)

// kafka-init creates the audit topic ahead of the first deploy so producers
// and consumers never race topic auto-creation.
func main() {
	brokers := flag.String("brokers", "localhost:9092", "comma separated broker list")
	topics := flag.String("topics", "crabiner.auth.events", "comma separated topics")
	partitions := flag.Int("partitions", 3, "partitions per topic")
	rf := flag.Int("rf", 1, "replication factor")
	wait := flag.Duration("wait", 30*time.Second, "how long to wait for each topic")
	flag.Parse()

	l, err := obs.NewLogger(obs.LogConfig{Level: "info", App: "crabiner/kafka-init"})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	bl := splitList(*brokers)
	if len(bl) == 0 {
		l.Fatal("no brokers")
	}
	for _, t := range splitList(*topics) {
		err := kafka.EnsureTopic(ctx, bl, kafka.TopicSpec{
			Name:              t,
			NumPartitions:     *partitions,
			ReplicationFactor: *rf,
			MaxWait:           *wait,
		}, l)
		if err != nil {
			l.Fatal("ensure topic", zap.String("topic", t), zap.Error(err))
		}
	}
	l.Info("kafka-init ok")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
