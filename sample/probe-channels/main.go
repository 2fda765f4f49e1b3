package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/xavierca1/lead-relay/internal/config"
	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/infra/notify"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

func main() {
	only := flag.String("channel", "", "probe a single channel (EMAIL, CRM_WEBHOOK, STAFF_MESSAGE)")
	flag.Parse()

	cfg, err := config.Read()
	if err != nil {
		log.Fatalf("❌ config: %v", err)
	}
	if cfg.StaffTransport == config.StaffTransportAMQP {
		log.Println("⚠️  STAFF_TRANSPORT=amqp is not probed here, falling back to telegram")
		cfg.StaffTransport = config.StaffTransportTelegram
	}

	dispatcher := usecase.NewDispatchLeadUseCase(nil, notify.Senders(cfg, nil), cfg.SendTimeout())

	channels := entity.AllChannels()
	if *only != "" {
		channels = []entity.Channel{entity.Channel(strings.ToUpper(*only))}
	}

	failed := 0
	for _, ch := range channels {
		fmt.Printf("🔄 Probing %s...\n", ch)
		res, err := dispatcher.Probe(context.Background(), ch)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		if res.Success {
			fmt.Printf("   ✅ delivered\n")
			continue
		}
		failed++
		fmt.Printf("   ❌ %s\n", res.Error)
	}

	if failed > 0 {
		log.Fatalf("%d of %d channels failed", failed, len(channels))
	}
	fmt.Println("All channels delivered the sample lead.")
}
