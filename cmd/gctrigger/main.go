package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/lodthe/registry-gc/pkg/gcclient"
)

type Action string

const (
	Trigger  Action = "trigger"
	ListRuns Action = "runs"
)

func main() {
	var action string
	var baseURL string
	var adminURL string
	var timeout time.Duration
	var limit int

	flag.StringVar(&action, "action", string(Trigger), "Action to process: trigger, runs")
	flag.StringVar(&baseURL, "url", "http://localhost:8000", "Trigger listener of the registry gc service")
	flag.StringVar(&adminURL, "admin-url", "http://localhost:2112", "Admin listener of the registry gc service, used by the runs action")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "How long to wait for the answer")
	flag.IntVar(&limit, "limit", 10, "How many runs to print")
	flag.Parse()

	client := gcclient.New(&gcclient.Config{
		BaseURL:  baseURL,
		AdminURL: adminURL,
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var err error
	switch Action(action) {
	case Trigger:
		err = trigger(ctx, client)
	case ListRuns:
		err = printRuns(ctx, client, limit)
	default:
		err = fmt.Errorf("unknown action %q, supported: trigger, runs", action)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		cancel()
		os.Exit(1)
	}
}

func trigger(ctx context.Context, client *gcclient.Client) error {
	startedAt := time.Now()

	err := client.Trigger(ctx)
	if errors.Is(err, gcclient.ErrBusy) {
		return errors.New("another gc sequence is running, try again later")
	}
	if err != nil {
		return fmt.Errorf("gc trigger failed: %w", err)
	}

	fmt.Printf("gc cmd exec ok (%s)\n", time.Since(startedAt).Round(time.Millisecond))

	return nil
}

func printRuns(ctx context.Context, client *gcclient.Client, limit int) error {
	runs, err := client.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	for _, run := range runs {
		status := "ok"
		if !run.OK {
			status = fmt.Sprintf("failed at %s (exit code %d)", run.FailedStep, run.ExitCode)
		}

		fmt.Printf("%s\t%s\t%s\t%s\n", run.ID, run.StartedAt.Format(time.DateTime), run.Elapsed, status)
	}

	return nil
}
