package qsub

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"
)

// sgeQstat mirrors the output of `qstat -u <user> -xml`. Running jobs
// live under queue_info, waiting jobs under the nested job_info.
type sgeQstat struct {
	XMLName xml.Name `xml:"job_info"`
	Queue   struct {
		Jobs []sgeJob `xml:"job_list"`
	} `xml:"queue_info"`
	Pending struct {
		Jobs []sgeJob `xml:"job_list"`
	} `xml:"job_info"`
}

type sgeJob struct {
	State          string `xml:"state,attr"`
	Name           string `xml:"JB_name"`
	Owner          string `xml:"JB_owner"`
	SubmissionTime string `xml:"JB_submission_time"`
	StartTime      string `xml:"JAT_start_time"`
}

func (j sgeJob) toJob() Job {
	state := JobStatePending
	if j.State == "running" {
		state = JobStateRunning
	}
	return Job{
		Name:        j.Name,
		State:       state,
		SubmittedAt: parseSchedulerTime(j.SubmissionTime),
		StartedAt:   parseSchedulerTime(j.StartTime),
	}
}

func parseSGEJobs(out []byte) ([]Job, error) {
	var doc sgeQstat
	if err := xml.Unmarshal(out, &doc); err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(doc.Queue.Jobs)+len(doc.Pending.Jobs))
	for _, j := range doc.Queue.Jobs {
		jobs = append(jobs, j.toJob())
	}
	for _, j := range doc.Pending.Jobs {
		jobs = append(jobs, j.toJob())
	}
	return jobs, nil
}

// pbsQstat mirrors the output of `qstat -x` on PBS/Torque.
type pbsQstat struct {
	XMLName xml.Name `xml:"Data"`
	Jobs    []pbsJob `xml:"Job"`
}

type pbsJob struct {
	Name      string `xml:"Job_Name"`
	Owner     string `xml:"Job_Owner"`
	State     string `xml:"job_state"`
	Queue     string `xml:"queue"`
	CTime     string `xml:"ctime"`
	StartTime string `xml:"start_time"`
}

func parsePBSJobs(out []byte, user string) ([]Job, error) {
	var doc pbsQstat
	if err := xml.Unmarshal(out, &doc); err != nil {
		return nil, err
	}

	var jobs []Job
	for _, j := range doc.Jobs {
		// Job_Owner is "user@submithost".
		if user != "" && !strings.HasPrefix(j.Owner, user) {
			continue
		}
		state := JobStatePending
		if j.State == "R" {
			state = JobStateRunning
		}
		jobs = append(jobs, Job{
			Name:        j.Name,
			State:       state,
			SubmittedAt: parseSchedulerTime(j.CTime),
			StartedAt:   parseSchedulerTime(j.StartTime),
		})
	}
	return jobs, nil
}

// schedulerTimeLayouts are the timestamp forms the two engines emit.
var schedulerTimeLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.ANSIC,
}

// parseSchedulerTime decodes a qstat timestamp, accepting either a
// textual layout or a unix epoch. Timestamps are informational only,
// so failures yield the zero time instead of an error.
func parseSchedulerTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range schedulerTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(epoch, 0).UTC()
	}
	return time.Time{}
}
