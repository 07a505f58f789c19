package main

import (
	"context"
	"fmt"

	"github.com/casedesk/intel-cli/internal/aggregate"
	"github.com/casedesk/intel-cli/internal/model"
	"github.com/casedesk/intel-cli/internal/session"
	"github.com/casedesk/intel-cli/internal/track"
)

// followJob polls the job inside a fresh view session until it reaches a
// terminal state, echoing status transitions. The session is torn down on
// return, so navigating away (ctrl-C) releases the poll timer.
func followJob(ctx context.Context, e *env, job *model.Job) (*model.Job, error) {
	sess := session.New(e.Client, track.Options{
		Interval:               cfg.Poll.Interval(),
		MaxConsecutiveFailures: cfg.Poll.MaxConsecutiveFailures,
	})
	defer sess.Close()

	lastStatus := job.Status
	fmt.Printf("Status: %s\n", lastStatus)

	err := sess.TrackJob(ctx, job, func(snapshot *model.Job) {
		if snapshot.Status != lastStatus {
			lastStatus = snapshot.Status
			fmt.Printf("Status: %s\n", lastStatus)
		}
	})
	if err != nil {
		return nil, err
	}

	poller := sess.Poller()
	select {
	case <-ctx.Done():
		poller.Stop()
		<-poller.Done()
		return nil, ctx.Err()
	case <-poller.Done():
	}
	if err := poller.Err(); err != nil {
		return nil, err
	}

	final := sess.CurrentJob()
	if final == nil {
		final = job
	}
	return final, nil
}

// printJobOutcome renders a terminal job: the aggregated summary for a
// completed job, or the backend's error message for a failed one.
func printJobOutcome(job *model.Job) {
	if job == nil {
		return
	}
	switch job.Status {
	case model.StatusFailed:
		fmt.Printf("Job %s failed: %s\n", job.ID, job.ErrorMessage)
	case model.StatusCompleted:
		summary := aggregate.Aggregate(job.ProviderResults)
		fmt.Printf("\nJob %s completed: %d providers succeeded, %d failed.\n",
			job.ID, summary.SuccessCount, summary.FailureCount)

		if len(summary.KeyFindings) > 0 {
			fmt.Println("\nKey findings:")
			for _, kf := range summary.KeyFindings {
				fmt.Printf("  %-10s %s  (via %s)\n", kf.Field+":", kf.Value, kf.Provider)
			}
		}

		fmt.Println("\nPer provider:")
		for _, pv := range summary.Providers {
			if !pv.Success {
				fmt.Printf("  %-18s failed: %s\n", pv.ProviderKey, pv.Error)
				continue
			}
			fmt.Printf("  %-18s confidence %s", pv.ProviderKey, pv.Bucket)
			for k, v := range pv.Fields {
				fmt.Printf("  %s=%s", k, v)
			}
			fmt.Println()
		}
	default:
		fmt.Printf("Job %s is %s.\n", job.ID, job.Status)
	}
}
