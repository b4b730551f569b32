package qsub

import (
	"bytes"
	"context"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/fact-project/eventlist/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBuildCommand(t *testing.T) {
	got := BuildCommand(SubmitOptions{
		Executable:  "/usr/local/bin/eventlist",
		JobName:     "eventlist_20230101_005.fits.fz",
		Stdout:      "/logs/eventlist_20230101_005.fits.fz.o",
		Stderr:      "/logs/eventlist_20230101_005.fits.fz.e",
		Queue:       "short",
		MailAddress: "fact@example.org",
		Environment: map[string]string{
			"FILE":             "/fact/raw/2023/01/01/20230101_005.fits.fz",
			"EVENTLIST_CONFIG": "/home/fact/eventlist.yaml",
		},
		Resources: map[string]string{"walltime": "02:00:00"},
		Engine:    "SGE",
	})

	want := []string{
		"qsub",
		"-N", "eventlist_20230101_005.fits.fz",
		"-q", "short",
		"-M", "fact@example.org",
		"-m", "a",
		"-b", "yes",
		"-o", "/logs/eventlist_20230101_005.fits.fz.o",
		"-e", "/logs/eventlist_20230101_005.fits.fz.e",
		"-v", "EVENTLIST_CONFIG=/home/fact/eventlist.yaml,FILE=/fact/raw/2023/01/01/20230101_005.fits.fz",
		"-l", "walltime=02:00:00",
		"/usr/local/bin/eventlist",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildCommand:\n got %v\nwant %v", got, want)
	}
}

func TestBuildCommandMinimalPBS(t *testing.T) {
	got := BuildCommand(SubmitOptions{Executable: "/bin/worker", Engine: "PBS"})
	want := []string{"qsub", "-m", "a", "/bin/worker"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildCommand = %v, want %v", got, want)
	}
}

func TestJobNameRoundTrip(t *testing.T) {
	name := JobName("/fact/raw/2023/01/01/20230101_005.fits.fz")
	if name != "eventlist_20230101_005.fits.fz" {
		t.Fatalf("JobName = %q", name)
	}

	key, ok := ParseJobName(name)
	if !ok {
		t.Fatal("ParseJobName failed")
	}
	if key != (model.RunKey{Night: 20230101, RunID: 5}) {
		t.Errorf("decoded key = %+v", key)
	}

	if _, ok := ParseJobName("other_20230101_005.fits.fz"); ok {
		t.Error("foreign job name must not decode")
	}
	if _, ok := ParseJobName("eventlist_garbage"); ok {
		t.Error("malformed job name must not decode")
	}
}

const sgeSample = `<?xml version='1.0'?>
<job_info>
  <queue_info>
    <job_list state="running">
      <JB_job_number>101</JB_job_number>
      <JB_name>eventlist_20230101_005.fits.fz</JB_name>
      <JB_owner>fact</JB_owner>
      <state>r</state>
      <JAT_start_time>2023-01-02T08:15:00</JAT_start_time>
    </job_list>
  </queue_info>
  <job_info>
    <job_list state="pending">
      <JB_job_number>102</JB_job_number>
      <JB_name>eventlist_20230101_006.fits.gz</JB_name>
      <JB_owner>fact</JB_owner>
      <state>qw</state>
      <JB_submission_time>2023-01-02T08:00:00</JB_submission_time>
    </job_list>
    <job_list state="pending">
      <JB_job_number>103</JB_job_number>
      <JB_name>someone_elses_job</JB_name>
      <JB_owner>fact</JB_owner>
      <state>qw</state>
    </job_list>
  </job_info>
</job_info>`

type fakeRunner struct {
	output map[string][]byte
	calls  []string
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	call := strings.Join(append([]string{name}, args...), " ")
	r.calls = append(r.calls, call)
	return r.output[name], nil
}

func TestListJobsSGE(t *testing.T) {
	runner := &fakeRunner{output: map[string][]byte{"qstat": []byte(sgeSample)}}
	client := newCLIClient("SGE", "fact", runner, testLogger())

	jobs, err := client.ListJobs(context.Background())
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}

	// The foreign job is filtered out by prefix.
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2: %+v", len(jobs), jobs)
	}
	if jobs[0].State != JobStateRunning || jobs[1].State != JobStatePending {
		t.Errorf("states = %s, %s", jobs[0].State, jobs[1].State)
	}
	if jobs[0].StartedAt.IsZero() {
		t.Error("running job should carry a start time")
	}
	key, ok := jobs[1].Run()
	if !ok || key != (model.RunKey{Night: 20230101, RunID: 6}) {
		t.Errorf("decoded pending job key = %+v, ok=%v", key, ok)
	}
	if CountPending(jobs) != 1 {
		t.Errorf("CountPending = %d, want 1", CountPending(jobs))
	}

	if len(runner.calls) != 1 || runner.calls[0] != "qstat -u fact -xml" {
		t.Errorf("qstat invocation = %v", runner.calls)
	}
}

const pbsSample = `<?xml version="1.0"?>
<Data>
  <Job>
    <Job_Name>eventlist_20230101_007.fits.fz</Job_Name>
    <Job_Owner>fact@login1</Job_Owner>
    <job_state>Q</job_state>
    <queue>short</queue>
    <ctime>1672646400</ctime>
  </Job>
  <Job>
    <Job_Name>eventlist_20230101_008.fits.fz</Job_Name>
    <Job_Owner>alice@login1</Job_Owner>
    <job_state>R</job_state>
    <queue>short</queue>
  </Job>
</Data>`

func TestListJobsPBSFiltersOwner(t *testing.T) {
	runner := &fakeRunner{output: map[string][]byte{"qstat": []byte(pbsSample)}}
	client := newCLIClient("PBS", "fact", runner, testLogger())

	jobs, err := client.ListJobs(context.Background())
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1 (alice's job filtered)", len(jobs))
	}
	if jobs[0].State != JobStatePending {
		t.Errorf("state = %s, want pending", jobs[0].State)
	}
	if jobs[0].SubmittedAt.IsZero() {
		t.Error("epoch ctime should parse")
	}
}

func TestSubmitAndCancel(t *testing.T) {
	runner := &fakeRunner{output: map[string][]byte{}}
	client := newCLIClient("SGE", "fact", runner, testLogger())
	ctx := context.Background()

	err := client.Submit(ctx, SubmitOptions{
		Executable: "/bin/worker",
		JobName:    "eventlist_20230101_005.fits.fz",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := client.Cancel(ctx, "eventlist_20230101_005.fits.fz"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if len(runner.calls) != 2 {
		t.Fatalf("calls = %v", runner.calls)
	}
	if !strings.HasPrefix(runner.calls[0], "qsub -N eventlist_20230101_005.fits.fz") {
		t.Errorf("submit call = %q", runner.calls[0])
	}
	if runner.calls[1] != "qdel eventlist_20230101_005.fits.fz" {
		t.Errorf("cancel call = %q", runner.calls[1])
	}
}
