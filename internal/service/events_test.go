package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kubev2v/transcriber/internal/events"
	"github.com/kubev2v/transcriber/internal/provider/providertest"
	"github.com/kubev2v/transcriber/internal/service"
	"github.com/kubev2v/transcriber/internal/storage"
	"github.com/kubev2v/transcriber/pkg/backoff"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type recordedEvent struct {
	kind  string
	event events.JobEvent
}

type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEvents) WriteJobEvent(_ context.Context, kind string, event events.JobEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{kind: kind, event: event})
	return nil
}

func (r *recordingEvents) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.kind)
	}
	return kinds
}

func (r *recordingEvents) Last() recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

var _ = Describe("job events", func() {
	var (
		recorder *recordingEvents
		fake     *providertest.Provider
		blobs    *storage.MemoryStore
	)

	BeforeEach(func() {
		recorder = &recordingEvents{}
		fake = providertest.New().SubmitReturns("tr-1", nil)
		blobs = storage.NewMemoryStore()
	})

	It("publishes the submission and the completion", func() {
		s := newTestStore()
		defer s.Close()

		srv := service.NewTranscriptionService(s, blobs, fake, service.NewAdmission(s, 10), testLimits, "").WithEvents(recorder)
		reconciler := service.NewReconciler(s, fake, blobs, backoff.NewPolicy(2, time.Millisecond)).WithEvents(recorder)

		job, err := srv.Create(context.TODO(), audioRequest("talk.mp3", "audio"))
		Expect(err).To(BeNil())
		Expect(recorder.Kinds()).To(Equal([]string{events.JobSubmittedKind}))
		Expect(recorder.Last().event.ProviderJobID).To(Equal("tr-1"))

		fake.Script("tr-1", providertest.Completed()).WithSRT("tr-1", testSRT)
		Expect(reconciler.Reconcile(context.TODO(), job.ID, "tr-1")).To(Succeed())

		Expect(recorder.Kinds()).To(Equal([]string{events.JobSubmittedKind, events.JobCompletedKind}))
		last := recorder.Last().event
		Expect(last.JobID).To(Equal(job.ID))
		Expect(last.Status).To(Equal("completed"))
		Expect(last.ResultRef).To(Equal(storage.ResultKey(job.ID)))

		// a terminal job publishes nothing more
		Expect(reconciler.Reconcile(context.TODO(), job.ID, "tr-1")).To(Succeed())
		Expect(recorder.Kinds()).To(HaveLen(2))
	})

	It("publishes the failure of a submission", func() {
		s := newTestStore()
		defer s.Close()

		fake.SubmitReturns("", errors.New("quota exceeded"))
		srv := service.NewTranscriptionService(s, blobs, fake, service.NewAdmission(s, 10), testLimits, "").WithEvents(recorder)

		_, err := srv.Create(context.TODO(), audioRequest("talk.mp3", "audio"))
		Expect(err).NotTo(BeNil())
		Expect(recorder.Kinds()).To(Equal([]string{events.JobFailedKind}))
		Expect(recorder.Last().event.ErrorMessage).To(Equal("Provider error: quota exceeded"))
	})

	It("publishes the failure reported by the provider", func() {
		s := newTestStore()
		defer s.Close()

		job := newProcessingJob(s, "tr-9")
		fake.Script("tr-9", providertest.Failed("audio too short"))
		reconciler := service.NewReconciler(s, fake, blobs, backoff.NewPolicy(2, time.Millisecond)).WithEvents(recorder)

		Expect(reconciler.Reconcile(context.TODO(), job.ID, "tr-9")).To(Succeed())
		Expect(recorder.Kinds()).To(Equal([]string{events.JobFailedKind}))
		Expect(recorder.Last().event.ErrorMessage).To(Equal("audio too short"))
	})

	It("works with the event producer", func() {
		s := newTestStore()
		defer s.Close()

		producer := events.NewEventProducer(&events.StdoutWriter{})
		srv := service.NewTranscriptionService(s, blobs, fake, service.NewAdmission(s, 10), testLimits, "").WithEvents(producer)

		_, err := srv.Create(context.TODO(), audioRequest("talk.mp3", "audio"))
		Expect(err).To(BeNil())
		Expect(producer.Close()).To(Succeed())
	})
})
