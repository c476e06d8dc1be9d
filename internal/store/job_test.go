package store_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kubev2v/transcriber/internal/config"
	"github.com/kubev2v/transcriber/internal/store"
	"github.com/kubev2v/transcriber/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

const (
	sqlTime      = "2006-01-02 15:04:05-07:00"
	insertJobStm = "INSERT INTO transcription_jobs (id, status, audio_s3_key, provider_job_id, retry_count, language_detection, speaker_labels, created_at) VALUES ('%s', '%s', 'audio/key', %s, 0, false, false, '%s');"
)

func providerID(id string) string {
	if id == "" {
		return "NULL"
	}
	return fmt.Sprintf("'%s'", id)
}

var _ = Describe("job store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		ctx    context.Context
	)

	BeforeAll(func() {
		cfg := config.NewDefault()
		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		Expect(s.InitialMigration(context.TODO())).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		ctx = context.TODO()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM transcription_jobs;")
	})

	Context("create", func() {
		It("creates a queued job", func() {
			job, err := s.Job().Create(ctx, model.NewJob(true, false))
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusQueued))
			Expect(job.ProviderJobID).To(BeNil())
			Expect(job.SourceRef).To(BeEmpty())

			got, err := s.Job().Get(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(got.LanguageDetection).To(BeTrue())
			Expect(got.SpeakerLabels).To(BeFalse())
			Expect(got.RetryCount).To(Equal(0))
		})

		It("forces the queued status", func() {
			j := model.NewJob(false, false)
			j.Status = model.JobStatusCompleted
			job, err := s.Job().Create(ctx, j)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusQueued))
		})
	})

	Context("get", func() {
		It("returns not found for an unknown id", func() {
			_, err := s.Job().Get(ctx, uuid.New())
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})

		It("finds a job by provider job id", func() {
			id := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertJobStm, id, "processing", providerID("p1"), time.Now().UTC().Format(sqlTime)))
			Expect(tx.Error).To(BeNil())

			job, err := s.Job().GetByProviderJobID(ctx, "p1")
			Expect(err).To(BeNil())
			Expect(job.ID).To(Equal(id))
		})

		It("returns not found for an unknown or empty provider job id", func() {
			_, err := s.Job().GetByProviderJobID(ctx, "missing")
			Expect(err).To(MatchError(store.ErrRecordNotFound))

			_, err = s.Job().GetByProviderJobID(ctx, "")
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})

	Context("update", func() {
		var job *model.Job

		BeforeEach(func() {
			var err error
			job, err = s.Job().Create(ctx, model.NewJob(false, false))
			Expect(err).To(BeNil())
		})

		It("attaches the source ref and the provider id", func() {
			updated, err := s.Job().Update(ctx, job.ID, store.NewJobUpdate().WithSourceRef("audio/x/a.mp3"))
			Expect(err).To(BeNil())
			Expect(updated.SourceRef).To(Equal("audio/x/a.mp3"))
			Expect(updated.Status).To(Equal(model.JobStatusQueued))

			updated, err = s.Job().Update(ctx, job.ID, store.NewJobUpdate().WithProviderJobID("p1").WithStatus(model.JobStatusProcessing))
			Expect(err).To(BeNil())
			Expect(updated.Status).To(Equal(model.JobStatusProcessing))
			Expect(*updated.ProviderJobID).To(Equal("p1"))
		})

		It("completes a processing job with every completion field", func() {
			_, err := s.Job().Update(ctx, job.ID, store.NewJobUpdate().WithProviderJobID("p1").WithStatus(model.JobStatusProcessing))
			Expect(err).To(BeNil())

			now := time.Now()
			updated, err := s.Job().Update(ctx, job.ID, store.NewJobUpdate().Completed("srt/x.srt", now))
			Expect(err).To(BeNil())
			Expect(updated.Status).To(Equal(model.JobStatusCompleted))
			Expect(*updated.ResultRef).To(Equal("srt/x.srt"))
			Expect(updated.CompletedAt).NotTo(BeNil())
			Expect(updated.ResultAvailable()).To(BeTrue())
		})

		It("moves a queued job straight to error", func() {
			updated, err := s.Job().Update(ctx, job.ID, store.NewJobUpdate().Failed("upload failed"))
			Expect(err).To(BeNil())
			Expect(updated.Status).To(Equal(model.JobStatusError))
			Expect(*updated.ErrorMessage).To(Equal("upload failed"))
		})

		It("refuses to complete a queued job", func() {
			_, err := s.Job().Update(ctx, job.ID, store.NewJobUpdate().Completed("srt/x.srt", time.Now()))
			Expect(err).To(MatchError(store.ErrInvalidTransition))

			got, err := s.Job().Get(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(got.Status).To(Equal(model.JobStatusQueued))
			Expect(got.ResultRef).To(BeNil())
		})

		It("never overwrites a terminal job", func() {
			_, err := s.Job().Update(ctx, job.ID, store.NewJobUpdate().Failed("first"))
			Expect(err).To(BeNil())

			_, err = s.Job().Update(ctx, job.ID, store.NewJobUpdate().Failed("second"))
			Expect(err).To(MatchError(store.ErrJobTerminal))

			_, err = s.Job().Update(ctx, job.ID, store.NewJobUpdate().WithSourceRef("other"))
			Expect(err).To(MatchError(store.ErrJobTerminal))

			got, err := s.Job().Get(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(*got.ErrorMessage).To(Equal("first"))
			Expect(got.SourceRef).To(BeEmpty())
		})

		It("rejects partial terminal updates", func() {
			status := model.JobStatusCompleted
			_, err := s.Job().Update(ctx, job.ID, store.JobUpdate{Status: &status})
			Expect(err).To(MatchError(store.ErrInvalidUpdate))

			status = model.JobStatusError
			_, err = s.Job().Update(ctx, job.ID, store.JobUpdate{Status: &status})
			Expect(err).To(MatchError(store.ErrInvalidUpdate))
		})

		It("returns not found for an unknown job", func() {
			_, err := s.Job().Update(ctx, uuid.New(), store.NewJobUpdate().WithSourceRef("x"))
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})

		It("rejects a provider id already used by another job", func() {
			_, err := s.Job().Update(ctx, job.ID, store.NewJobUpdate().WithProviderJobID("dup").WithStatus(model.JobStatusProcessing))
			Expect(err).To(BeNil())

			other, err := s.Job().Create(ctx, model.NewJob(false, false))
			Expect(err).To(BeNil())
			_, err = s.Job().Update(ctx, other.ID, store.NewJobUpdate().WithProviderJobID("dup").WithStatus(model.JobStatusProcessing))
			Expect(err).To(MatchError(store.ErrDuplicateKey))
		})

		It("lets exactly one of many concurrent terminal writers win", func() {
			_, err := s.Job().Update(ctx, job.ID, store.NewJobUpdate().WithProviderJobID("p1").WithStatus(model.JobStatusProcessing))
			Expect(err).To(BeNil())

			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := s.Job().Update(ctx, job.ID, store.NewJobUpdate().Completed(fmt.Sprintf("srt/%d.srt", i), time.Now()))
					if err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
						return
					}
					Expect(err).To(MatchError(store.ErrJobTerminal))
				}(i)
			}
			wg.Wait()
			Expect(wins).To(Equal(1))
		})
	})

	Context("retry count", func() {
		It("increments the retry count of an active job", func() {
			job, err := s.Job().Create(ctx, model.NewJob(false, false))
			Expect(err).To(BeNil())

			count, err := s.Job().IncrementRetry(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(count).To(Equal(1))

			count, err = s.Job().IncrementRetry(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(count).To(Equal(2))
		})

		It("does not touch a terminal job", func() {
			job, err := s.Job().Create(ctx, model.NewJob(false, false))
			Expect(err).To(BeNil())
			_, err = s.Job().Update(ctx, job.ID, store.NewJobUpdate().Failed("boom"))
			Expect(err).To(BeNil())

			_, err = s.Job().IncrementRetry(ctx, job.ID)
			Expect(err).To(MatchError(store.ErrJobTerminal))

			got, err := s.Job().Get(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(got.RetryCount).To(Equal(0))
		})
	})

	Context("scans", func() {
		BeforeEach(func() {
			old := time.Now().UTC().Add(-3 * time.Hour).Format(sqlTime)
			fresh := time.Now().UTC().Format(sqlTime)

			stms := []string{
				fmt.Sprintf(insertJobStm, uuid.New(), "processing", providerID("old-1"), old),
				fmt.Sprintf(insertJobStm, uuid.New(), "processing", providerID("fresh-1"), fresh),
				fmt.Sprintf(insertJobStm, uuid.New(), "processing", providerID(""), old),
				fmt.Sprintf(insertJobStm, uuid.New(), "queued", providerID(""), fresh),
				fmt.Sprintf(insertJobStm, uuid.New(), "completed", providerID("done-1"), old),
				fmt.Sprintf(insertJobStm, uuid.New(), "error", providerID("err-1"), old),
			}
			for _, stm := range stms {
				tx := gormdb.Exec(stm)
				Expect(tx.Error).To(BeNil())
			}
		})

		It("lists only stale processing jobs with a provider id", func() {
			jobs, err := s.Job().ListStaleProcessing(ctx, 2*time.Hour)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
			Expect(*jobs[0].ProviderJobID).To(Equal("old-1"))
		})

		It("lists every processing job with a provider id", func() {
			jobs, err := s.Job().ListProcessing(ctx)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))
			ids := []string{*jobs[0].ProviderJobID, *jobs[1].ProviderJobID}
			Expect(ids).To(ConsistOf("old-1", "fresh-1"))
		})

		It("counts queued and processing jobs only", func() {
			count, err := s.Job().CountActive(ctx)
			Expect(err).To(BeNil())
			Expect(count).To(BeNumerically("==", 4))
		})

		It("lists with filters", func() {
			jobs, err := s.Job().List(ctx, store.NewJobQueryFilter().ByStatus(model.JobStatusCompleted, model.JobStatusError), store.NewJobQueryOptions().WithLimit(10))
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))

			jobs, err = s.Job().List(ctx, store.NewJobQueryFilter().ByProviderJobID("done-1"), nil)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].Status).To(Equal(model.JobStatusCompleted))
		})
	})
})
