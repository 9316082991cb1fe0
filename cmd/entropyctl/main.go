// Command entropyctl is the operator CLI for C7's management RPCs
// (submit a validation job, poll its status, fetch its result), grounded
// on chromeperf/pinpoint/cli's subcommand-per-verb shape but built on
// github.com/google/subcommands, the variant already in the teacher's
// own go.mod require block.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
	"google.golang.org/grpc"

	"entropysvc/internal/entropypb"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&submitCmd{}, "")
	subcommands.Register(&statusCmd{}, "")
	subcommands.Register(&resultCmd{}, "")

	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}

// dial opens a connection to entropyserver's management RPC port,
// selecting the JSON content-subtype registered in entropypb/codec.go
// (there is no protoc-generated client stub in this exercise, spec §1).
func dial(endpoint string) (*grpc.ClientConn, error) {
	return grpc.Dial(endpoint, grpc.WithInsecure(), grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")))
}

type submitCmd struct {
	endpoint    string
	jobType     string
	window      time.Duration
	callerToken string
}

func (*submitCmd) Name() string     { return "submit" }
func (*submitCmd) Synopsis() string { return "submit a validation job over a trailing time window" }
func (*submitCmd) Usage() string {
	return "submit -type SUITE_22|ASSESS_90B -window 1h\n"
}

func (c *submitCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.endpoint, "endpoint", "localhost:60900", "entropyserver address")
	f.StringVar(&c.jobType, "type", "SUITE_22", "job type: SUITE_22 or ASSESS_90B")
	f.DurationVar(&c.window, "window", time.Hour, "trailing window ending now")
	f.StringVar(&c.callerToken, "caller_token", "", "bearer token to propagate to outbound validators")
}

func (c *submitCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	conn, err := dial(c.endpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", c.endpoint, err)
		return subcommands.ExitFailure
	}
	defer conn.Close()

	end := time.Now()
	req := &entropypb.SubmitJobRequest{
		JobType:     c.jobType,
		WindowStart: end.Add(-c.window),
		WindowEnd:   end,
		CallerToken: c.callerToken,
	}
	resp := new(entropypb.SubmitJobResponse)
	if err := conn.Invoke(ctx, "/entropy.v1.EntropyControl/SubmitJob", req, resp); err != nil {
		fmt.Fprintf(os.Stderr, "submit: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("job_id=%s run_id=%s status=%s\n", resp.JobID, resp.RunID, resp.Status)
	return subcommands.ExitSuccess
}

type statusCmd struct {
	endpoint string
	jobID    string
}

func (*statusCmd) Name() string     { return "status" }
func (*statusCmd) Synopsis() string { return "poll a validation job's status" }
func (*statusCmd) Usage() string    { return "status -job_id <id>\n" }

func (c *statusCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.endpoint, "endpoint", "localhost:60900", "entropyserver address")
	f.StringVar(&c.jobID, "job_id", "", "job id returned by submit")
}

func (c *statusCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.jobID == "" {
		fmt.Fprintln(os.Stderr, "status: -job_id is required")
		return subcommands.ExitUsageError
	}
	conn, err := dial(c.endpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", c.endpoint, err)
		return subcommands.ExitFailure
	}
	defer conn.Close()

	resp := new(entropypb.GetStatusResponse)
	if err := conn.Invoke(ctx, "/entropy.v1.EntropyControl/GetStatus", &entropypb.GetStatusRequest{JobID: c.jobID}, resp); err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("status=%s progress=%.1f%% chunk=%d/%d", resp.Status, resp.ProgressPercent, resp.CurrentChunk, resp.TotalChunks)
	if resp.Error != "" {
		fmt.Printf(" error=%q", resp.Error)
	}
	fmt.Println()
	return subcommands.ExitSuccess
}

type resultCmd struct {
	endpoint string
	jobID    string
}

func (*resultCmd) Name() string     { return "result" }
func (*resultCmd) Synopsis() string { return "fetch a completed validation job's result" }
func (*resultCmd) Usage() string    { return "result -job_id <id>\n" }

func (c *resultCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.endpoint, "endpoint", "localhost:60900", "entropyserver address")
	f.StringVar(&c.jobID, "job_id", "", "job id returned by submit")
}

func (c *resultCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.jobID == "" {
		fmt.Fprintln(os.Stderr, "result: -job_id is required")
		return subcommands.ExitUsageError
	}
	conn, err := dial(c.endpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", c.endpoint, err)
		return subcommands.ExitFailure
	}
	defer conn.Close()

	resp := new(entropypb.GetResultResponse)
	if err := conn.Invoke(ctx, "/entropy.v1.EntropyControl/GetResult", &entropypb.GetResultRequest{JobID: c.jobID}, resp); err != nil {
		fmt.Fprintf(os.Stderr, "result: %v\n", err)
		return subcommands.ExitFailure
	}
	if resp.JobType == "SUITE_22" {
		fmt.Printf("test_results=%d overall_pass_rate=%.3f\n", resp.TestResultCount, resp.OverallPassRate)
		return subcommands.ExitSuccess
	}
	fmt.Printf("min_entropy=%.4f nist_compliant=%v\n", resp.MinEntropy, resp.NISTCompliant)
	for _, e := range resp.Estimators {
		estimate := "n/a"
		if e.EntropyEstimate != nil {
			estimate = fmt.Sprintf("%.4f", *e.EntropyEstimate)
		}
		fmt.Printf("  %s passed=%v entropy_estimate=%s\n", e.Type, e.Passed, estimate)
	}
	return subcommands.ExitSuccess
}
