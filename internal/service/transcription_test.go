package service_test

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kubev2v/transcriber/internal/dispatcher"
	"github.com/kubev2v/transcriber/internal/provider/providertest"
	"github.com/kubev2v/transcriber/internal/service"
	"github.com/kubev2v/transcriber/internal/storage"
	"github.com/kubev2v/transcriber/internal/store"
	"github.com/kubev2v/transcriber/internal/store/model"
	"github.com/kubev2v/transcriber/pkg/backoff"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const callbackURL = "https://transcriber.example.com/api/v1/webhooks/assemblyai/" + webhookSecret

var testLimits = service.Limits{
	MaxFileSize:     1024,
	AllowedFormats:  []string{".wav", ".mp3", ".m4a", ".flac", ".ogg", ".webm"},
	SourceURLExpiry: 24 * time.Hour,
	ResultURLExpiry: time.Hour,
}

func audioRequest(filename, content string) service.CreateRequest {
	return service.CreateRequest{
		Filename:          filename,
		ContentType:       "audio/mpeg",
		Size:              int64(len(content)),
		Body:              strings.NewReader(content),
		LanguageDetection: true,
	}
}

var _ = Describe("transcription service", func() {
	var (
		s     store.Store
		fake  *providertest.Provider
		blobs *storage.MemoryStore
		srv   *service.TranscriptionService
	)

	BeforeEach(func() {
		s = newTestStore()
		fake = providertest.New().SubmitReturns("tr-1", nil)
		blobs = storage.NewMemoryStore()
		srv = service.NewTranscriptionService(s, blobs, fake, service.NewAdmission(s, 10), testLimits, callbackURL)
	})

	AfterEach(func() {
		s.Close()
	})

	listJobs := func() model.JobList {
		jobs, err := s.Job().List(context.TODO(), nil, nil)
		Expect(err).To(BeNil())
		return jobs
	}

	Context("create", func() {
		It("uploads the audio and submits it", func() {
			job, err := srv.Create(context.TODO(), audioRequest("talk.mp3", "ID3 audio"))
			Expect(err).To(BeNil())

			Expect(job.Status).To(Equal(model.JobStatusProcessing))
			Expect(job.SourceRef).To(Equal(storage.AudioKey(job.ID, "talk.mp3")))
			Expect(job.ProviderJobID).NotTo(BeNil())
			Expect(*job.ProviderJobID).To(Equal("tr-1"))
			Expect(job.LanguageDetection).To(BeTrue())

			data, found := blobs.Get(job.SourceRef)
			Expect(found).To(BeTrue())
			Expect(string(data)).To(Equal("ID3 audio"))

			submissions := fake.Submissions()
			Expect(submissions).To(HaveLen(1))
			Expect(submissions[0].CallbackURL).To(Equal(callbackURL))
			Expect(submissions[0].SourceURL).To(ContainSubstring("expires=86400"))
			Expect(submissions[0].Options.LanguageDetection).To(BeTrue())
			Expect(submissions[0].Options.SpeakerLabels).To(BeFalse())
		})

		It("submits without a callback when the webhook is not configured", func() {
			srv = service.NewTranscriptionService(s, blobs, fake, service.NewAdmission(s, 10), testLimits, "")

			_, err := srv.Create(context.TODO(), audioRequest("talk.wav", "RIFF"))
			Expect(err).To(BeNil())
			Expect(fake.Submissions()[0].CallbackURL).To(BeEmpty())
		})

		It("accepts upper case extensions", func() {
			_, err := srv.Create(context.TODO(), audioRequest("TALK.MP3", "ID3"))
			Expect(err).To(BeNil())
		})

		DescribeTable("rejects unsupported files before creating a job",
			func(req service.CreateRequest, expected any) {
				_, err := srv.Create(context.TODO(), req)
				Expect(err).To(BeAssignableToTypeOf(expected))
				Expect(listJobs()).To(BeEmpty())
				Expect(fake.Submissions()).To(BeEmpty())
			},
			Entry("text file", audioRequest("notes.txt", "hello"), &service.ErrInvalidFormat{}),
			Entry("no extension", audioRequest("recording", "hello"), &service.ErrInvalidFormat{}),
			Entry("too large", audioRequest("talk.mp3", strings.Repeat("a", 1025)), &service.ErrFileTooLarge{}),
		)

		It("rejects jobs over the concurrency limit", func() {
			srv = service.NewTranscriptionService(s, blobs, fake, service.NewAdmission(s, 1), testLimits, callbackURL)
			_, err := s.Job().Create(context.TODO(), model.NewJob(false, false))
			Expect(err).To(BeNil())

			_, err = srv.Create(context.TODO(), audioRequest("talk.mp3", "ID3"))
			Expect(err).To(BeAssignableToTypeOf(&service.ErrTooManyJobs{}))
			Expect(err.Error()).To(ContainSubstring("(1)"))
			Expect(listJobs()).To(HaveLen(1))
		})

		It("fails the job when the upload fails", func() {
			blobs.FailWith(errors.New("bucket unavailable"))

			_, err := srv.Create(context.TODO(), audioRequest("talk.mp3", "ID3"))
			Expect(err).To(BeAssignableToTypeOf(&service.ErrUploadFailed{}))

			jobs := listJobs()
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].Status).To(Equal(model.JobStatusError))
			Expect(*jobs[0].ErrorMessage).To(Equal("bucket unavailable"))
			Expect(fake.Submissions()).To(BeEmpty())
		})

		It("fails the job when the provider rejects it", func() {
			fake.SubmitReturns("", errors.New("quota exceeded"))

			_, err := srv.Create(context.TODO(), audioRequest("talk.mp3", "ID3"))
			Expect(err).To(BeAssignableToTypeOf(&service.ErrSubmissionFailed{}))

			jobs := listJobs()
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].Status).To(Equal(model.JobStatusError))
			Expect(*jobs[0].ErrorMessage).To(Equal("Provider error: quota exceeded"))
			Expect(jobs[0].ProviderJobID).To(BeNil())
		})

		It("fails the job when the request is cancelled during submission", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			fake.SubmitReturns("", context.Canceled).OnSubmit(func(context.Context) { cancel() })

			_, err := srv.Create(ctx, audioRequest("talk.mp3", "ID3"))
			Expect(err).To(BeAssignableToTypeOf(&service.ErrSubmissionFailed{}))

			jobs := listJobs()
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].Status).To(Equal(model.JobStatusError))

			active, err := s.Job().CountActive(context.TODO())
			Expect(err).To(BeNil())
			Expect(active).To(BeZero())
		})

		It("fails the job when its transcript id cannot be recorded", func() {
			fake.SubmitReturns("tr-dup", nil)
			first, err := srv.Create(context.TODO(), audioRequest("first.mp3", "ID3"))
			Expect(err).To(BeNil())

			_, err = srv.Create(context.TODO(), audioRequest("second.mp3", "ID3"))
			Expect(err).To(MatchError(store.ErrDuplicateKey))

			jobs := listJobs()
			Expect(jobs).To(HaveLen(2))
			for _, job := range jobs {
				if job.ID == first.ID {
					Expect(job.Status).To(Equal(model.JobStatusProcessing))
					continue
				}
				Expect(job.Status).To(Equal(model.JobStatusError))
				Expect(*job.ErrorMessage).To(ContainSubstring("tr-dup"))
				Expect(job.ProviderJobID).To(BeNil())
			}

			active, err := s.Job().CountActive(context.TODO())
			Expect(err).To(BeNil())
			Expect(active).To(BeNumerically("==", 1))
		})
	})

	Context("get", func() {
		It("returns a typed error for an unknown job", func() {
			_, err := srv.Get(context.TODO(), uuid.New())
			Expect(err).To(BeAssignableToTypeOf(&service.ErrJobNotFound{}))
		})
	})

	Context("result url", func() {
		It("refuses a job still in progress", func() {
			job := newProcessingJob(s, "tr-1")

			_, err := srv.ResultURL(context.TODO(), job.ID)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrResultNotReady{}))
		})

		It("reports the failure of a failed job", func() {
			job := newProcessingJob(s, "tr-1")
			_, err := s.Job().Update(context.TODO(), job.ID, store.NewJobUpdate().Failed("audio is corrupted"))
			Expect(err).To(BeNil())

			_, err = srv.ResultURL(context.TODO(), job.ID)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrJobFailed{}))
			Expect(err.Error()).To(Equal("Transcription failed: audio is corrupted"))
		})

		It("presigns the subtitles of a completed job", func() {
			job := newProcessingJob(s, "tr-1")
			key := storage.ResultKey(job.ID)
			Expect(blobs.PutBytes(context.TODO(), key, []byte(testSRT), storage.SRTContentType)).To(Succeed())
			_, err := s.Job().Update(context.TODO(), job.ID, store.NewJobUpdate().Completed(key, time.Now()))
			Expect(err).To(BeNil())

			url, err := srv.ResultURL(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(url).To(ContainSubstring(key))
			Expect(url).To(ContainSubstring("expires=3600"))
		})
	})

	Context("end to end", func() {
		It("completes a job from its webhook and ignores the duplicate", func() {
			fake.Script("tr-1", providertest.Completed()).WithSRT("tr-1", testSRT)
			reconciler := service.NewReconciler(s, fake, blobs, backoff.NewPolicy(3, time.Millisecond))
			d := dispatcher.NewMemory(dispatcher.Config{Workers: 2, BufferSize: 10})
			defer func() { _ = d.Close(context.TODO()) }()
			webhooks := service.NewWebhookService(s, reconciler, d, webhookSecret)

			job, err := srv.Create(context.TODO(), audioRequest("talk.mp3", "ID3"))
			Expect(err).To(BeNil())

			ack, err := webhooks.Handle(context.TODO(), webhookSecret, "tr-1", "completed")
			Expect(err).To(BeNil())
			Expect(ack.JobID).To(Equal(job.ID))

			Eventually(func() model.JobStatus {
				return getJob(s, job).Status
			}).Should(Equal(model.JobStatusCompleted))

			_, err = webhooks.Handle(context.TODO(), webhookSecret, "tr-1", "completed")
			Expect(err).To(BeNil())
			Consistently(func() int64 { return d.Stats().Queued }).Should(BeNumerically("==", 1))

			Expect(blobs.Puts(storage.ResultKey(job.ID))).To(Equal(1))
			Expect(fake.Fetches("tr-1")).To(Equal(1))

			url, err := srv.ResultURL(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(url).To(ContainSubstring("srt/" + job.ID.String() + ".srt"))
		})
	})
})
