// Command asynclogd runs the async logging pipeline as a standalone
// daemon: producers in -demo mode generate synthetic load, or a real
// embedder links package asynclog directly and uses this binary only
// as a reference for wiring config, cloud upload, and shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/corelog/asynclog/asynclog"
	"github.com/corelog/asynclog/cloudupload"
	"github.com/corelog/asynclog/config"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (required)")
	demo := flag.Bool("demo", false, "run a synthetic producer workload instead of waiting for a shutdown signal")
	demoDuration := flag.Duration("demo-duration", 10*time.Second, "how long -demo runs before shutting down")
	demoThreads := flag.Int("demo-threads", 4, "number of concurrent producer goroutines in -demo mode")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "asynclogd: -config is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("asynclogd: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var uploader *cloudupload.Uploader
	onRoll := func(path string) {}
	if cfg.Cloud.Enabled {
		uploader, err = cloudupload.NewUploader(ctx, cfg.Cloud.ToUploadConfig())
		if err != nil {
			log.Fatalf("asynclogd: starting cloud uploader: %v", err)
		}
		onRoll = uploader.Enqueue
	}

	pipeline := asynclog.New(asynclog.Config{
		Basename:      cfg.Pipeline.Basename,
		RollSize:      cfg.Pipeline.RollSize,
		FlushInterval: cfg.Pipeline.FlushInterval,
		CheckEveryN:   cfg.Pipeline.CheckEveryN,
		OnRoll:        onRoll,
	})
	pipeline.Start()
	log.Printf("asynclogd: pipeline started, writing to %s*", cfg.Pipeline.Basename)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if *demo {
		runDemo(pipeline, *demoThreads, *demoDuration)
	} else {
		log.Println("asynclogd: running, send SIGINT/SIGTERM to shut down")
		<-sigCh
		log.Println("asynclogd: shutdown signal received")
	}

	pipeline.Stop()
	log.Println("asynclogd: pipeline stopped")

	if uploader != nil {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer closeCancel()
		if err := uploader.Close(closeCtx); err != nil {
			log.Printf("asynclogd: uploader close: %v", err)
		}
	}
}

func runDemo(pipeline *asynclog.AsyncLogging, threads int, duration time.Duration) {
	log.Printf("asynclogd: demo mode, %d producer(s) for %s", threads, duration)
	stop := time.After(duration)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(threads)
	for i := 0; i < threads; i++ {
		go func(id int) {
			defer wg.Done()
			record := []byte(fmt.Sprintf("[demo] producer %d heartbeat\n", id))
			for {
				select {
				case <-done:
					return
				default:
					pipeline.Append(record)
					time.Sleep(time.Millisecond)
				}
			}
		}(i)
	}

	<-stop
	close(done)
	wg.Wait()
}
