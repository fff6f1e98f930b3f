package grading

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/assignment"
)

const jobAssignmentPrefix = "asn:"

type jobTask struct {
	jobID   string
	asn     assignment.Assignment
	opts    GradeOptions
	release func()
}

func jobAssignmentKey(assignmentID int) string {
	return jobAssignmentPrefix + strconv.Itoa(assignmentID)
}

// Start launches the job workers. They stop when ctx is done, cancelling running jobs.
func (svc *Service) Start(ctx context.Context) {
	svc.jobsMu.Lock()
	defer svc.jobsMu.Unlock()
	if svc.started {
		return
	}
	svc.started = true

	workers := svc.conf.Grading.JobWorkers
	if workers < 1 {
		workers = 1
	}
	for w := 0; w < workers; w++ {
		svc.wg.Add(1)
		go svc.work(ctx)
	}
	go func() {
		<-ctx.Done()
		close(svc.stopped)
	}()
}

// Wait blocks until every job worker has returned.
func (svc *Service) Wait() {
	svc.wg.Wait()
}

func (svc *Service) work(ctx context.Context) {
	defer svc.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-svc.queue:
			svc.runJob(ctx, task)
		}
	}
}

func (svc *Service) getJob(id string) (Job, bool) {
	v, ok := svc.jobs.Get(id)
	if !ok {
		return Job{}, false
	}
	job, ok := v.(Job)
	return job, ok
}

func (svc *Service) updateJob(id string, update func(job *Job)) {
	svc.jobsMu.Lock()
	defer svc.jobsMu.Unlock()
	job, ok := svc.getJob(id)
	if !ok {
		return
	}
	update(&job)
	svc.jobs.SetDefault(id, job)
}

// Reserve marks the assignment busy until release is called, so that grading runs and
// submission uploads of one assignment never overlap. It fails with ErrJobRunning while
// another caller holds the assignment.
func (svc *Service) Reserve(assignmentID int) (release func(), err error) {
	svc.busyMu.Lock()
	defer svc.busyMu.Unlock()
	if svc.busy[assignmentID] {
		return nil, ErrJobRunning
	}
	svc.busy[assignmentID] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			svc.busyMu.Lock()
			delete(svc.busy, assignmentID)
			svc.busyMu.Unlock()
		})
	}, nil
}

// Enqueue schedules an asynchronous grading run. Only one job per assignment may be pending or running.
func (svc *Service) Enqueue(asn assignment.Assignment, opts GradeOptions) (Job, error) {
	if _, err := svc.submissionFiles(asn); err != nil {
		return Job{}, err
	}

	svc.jobsMu.Lock()
	defer svc.jobsMu.Unlock()

	select {
	case <-svc.stopped:
		return Job{}, core.NewShutdownError(errServiceStopped.Error())
	default:
	}

	release, err := svc.Reserve(asn.ID)
	if err != nil {
		return Job{}, err
	}

	job := Job{
		ID:           uuid.New().String(),
		AssignmentID: asn.ID,
		Status:       JobPending,
		CreatedAt:    time.Now().UTC(),
	}
	select {
	case svc.queue <- jobTask{jobID: job.ID, asn: asn, opts: opts, release: release}:
	default:
		release()
		return Job{}, ErrQueueFull
	}
	svc.jobs.Set(job.ID, job, cache.DefaultExpiration)
	svc.jobs.Set(jobAssignmentKey(asn.ID), job.ID, cache.DefaultExpiration)
	return job, nil
}

func (svc *Service) runJob(ctx context.Context, task jobTask) {
	started := time.Now().UTC()
	svc.updateJob(task.jobID, func(job *Job) {
		job.Status = JobRunning
		job.StartedAt = &started
	})

	summary, err := svc.grade(ctx, task.asn, task.opts, func(total, graded int) {
		svc.updateJob(task.jobID, func(job *Job) {
			job.Total = total
			if graded > job.Graded {
				job.Graded = graded
			}
		})
	})
	task.release() // before the job reads as done

	finished := time.Now().UTC()
	svc.updateJob(task.jobID, func(job *Job) {
		job.FinishedAt = &finished
		if err != nil {
			job.Status = JobFailed
			job.Error = err.Error()
			return
		}
		job.Status = JobCompleted
		job.Total = summary.TotalSubmissions
		job.Graded = summary.TotalSubmissions
		job.Result = &summary
	})

	if err != nil {
		if ctx.Err() != nil {
			return // shutting down
		}
		svc.logger.Error(fmt.Sprintf("grading.runJob(%s): %v", task.jobID, err), err)
		svc.notify(ctx, task.asn, nil, err)
		return
	}
	svc.notify(ctx, task.asn, &summary, nil)
}

// JobStatus returns a job of the assignment: the one identified by jobID, or the latest one when jobID is empty.
func (svc *Service) JobStatus(assignmentID int, jobID string) (Job, error) {
	if jobID == "" {
		v, _ := svc.jobs.Get(jobAssignmentKey(assignmentID))
		id, ok := v.(string)
		if !ok {
			return Job{}, ErrJobNotFound
		}
		jobID = id
	}
	job, ok := svc.getJob(jobID)
	if !ok || job.AssignmentID != assignmentID {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}
