package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// CollectEvent mirrors the consumer-side message format.
type CollectEvent struct {
	UserID   string `json:"user_id"`
	ItemID   string `json:"item_id"`
	ItemName string `json:"item_name"`
}

// huntItems is the fixed item catalog of the scavenger hunt.
var huntItems = []struct {
	ID   string
	Name string
}{
	{"item-1", "Brass Compass"},
	{"item-2", "Old Map Fragment"},
	{"item-3", "Silver Key"},
	{"item-4", "Carved Figurine"},
	{"item-5", "Sealed Letter"},
}

var playerPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
}

func getPlayerID(idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return fmt.Sprintf("%s%d", playerPrefixes[prefixIdx], suffix)
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "hunt-collect-events", "Kafka topic")
	totalPlayers := flag.Int("players", 100, "Number of simulated players")
	eventsPerSecond := flag.Int("rate", 20, "Collect events per second")
	duplicatePct := flag.Int("duplicates", 20, "Percent of events that re-touch an already collected item")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("Scavenger hunt collect-event producer")
	fmt.Printf("  Brokers:     %s\n", *brokers)
	fmt.Printf("  Topic:       %s\n", *topic)
	fmt.Printf("  Players:     %d\n", *totalPlayers)
	fmt.Printf("  Events/sec:  %d\n", *eventsPerSecond)
	fmt.Printf("  Duplicates:  %d%%\n", *duplicatePct)
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	// Send message helper. Keyed by user so a player's events stay on one
	// partition and arrive in order.
	sendEvent := func(event CollectEvent) {
		data, err := json.Marshal(event)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(event.UserID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	// Per-player progress: which items each simulated player has touched.
	collected := make([]map[int]bool, *totalPlayers)
	for i := range collected {
		collected[i] = make(map[int]bool)
	}

	shutdown := func(reason string) {
		fmt.Printf("\n%s\n", reason)
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	interval := time.Second / time.Duration(*eventsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var eventCount int64

	for {
		select {
		case <-sigChan:
			shutdown("Shutting down...")
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				shutdown("Duration reached, shutting down...")
				return
			}

			playerIdx := rand.Intn(*totalPlayers)
			progress := collected[playerIdx]

			var itemIdx int
			if len(progress) > 0 && rand.Intn(100) < *duplicatePct {
				// Re-touch an already collected item
				touched := make([]int, 0, len(progress))
				for idx := range progress {
					touched = append(touched, idx)
				}
				itemIdx = touched[rand.Intn(len(touched))]
			} else if len(progress) < len(huntItems) {
				// Touch the next uncollected item in a random order
				for {
					itemIdx = rand.Intn(len(huntItems))
					if !progress[itemIdx] {
						break
					}
				}
				progress[itemIdx] = true
			} else {
				// Finished players start a fresh run
				collected[playerIdx] = map[int]bool{0: true}
				itemIdx = 0
			}

			item := huntItems[itemIdx]
			sendEvent(CollectEvent{
				UserID:   getPlayerID(playerIdx),
				ItemID:   item.ID,
				ItemName: item.Name,
			})
			atomic.AddInt64(&eventCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Events: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&eventCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
