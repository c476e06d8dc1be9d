package events

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/kubev2v/transcriber/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("producer", func() {
	It("writes the events in order", func() {
		w := newTestWriter()
		ep := NewEventProducer(w, WithOutputTopic("jobs"))

		Expect(ep.Write(context.TODO(), JobSubmittedKind, bytes.NewReader([]byte(`{"n":1}`)))).To(Succeed())
		Expect(ep.Write(context.TODO(), JobCompletedKind, bytes.NewReader([]byte(`{"n":2}`)))).To(Succeed())

		Eventually(w.Len).Should(Equal(2))
		events := w.Events()
		Expect(events[0].Type()).To(Equal(JobSubmittedKind))
		Expect(events[1].Type()).To(Equal(JobCompletedKind))
		Expect(events[0].Source()).To(Equal("transcriber.api"))
		Expect(w.Topics()).To(ConsistOf("jobs", "jobs"))

		Expect(ep.Close()).To(Succeed())
		Expect(w.closed).To(BeTrue())
	})

	It("flushes pending events on close", func() {
		w := newTestWriter()
		ep := NewEventProducer(w)

		for i := 0; i < 20; i++ {
			Expect(ep.Write(context.TODO(), JobFailedKind, bytes.NewReader([]byte(`{}`)))).To(Succeed())
		}
		Expect(ep.Close()).To(Succeed())
		Expect(w.Len()).To(Equal(20))
		Expect(w.Topics()[0]).To(Equal(defaultTopic))
	})

	It("refuses events once closed", func() {
		ep := NewEventProducer(newTestWriter())
		Expect(ep.Close()).To(Succeed())
		Expect(ep.Close()).To(Succeed())

		err := ep.Write(context.TODO(), JobFailedKind, bytes.NewReader(nil))
		Expect(err).To(MatchError(ErrProducerClosed))
	})

	It("encodes job events", func() {
		w := newTestWriter()
		ep := NewEventProducer(w)

		providerJobID := "tr-1"
		ref := "srt/job.srt"
		job := model.Job{
			ID:            uuid.New(),
			Status:        model.JobStatusCompleted,
			ProviderJobID: &providerJobID,
			ResultRef:     &ref,
		}
		Expect(ep.WriteJobEvent(context.TODO(), JobCompletedKind, NewJobEvent(job))).To(Succeed())
		Expect(ep.Close()).To(Succeed())

		var got JobEvent
		Expect(json.Unmarshal(w.Events()[0].Data(), &got)).To(Succeed())
		Expect(got.JobID).To(Equal(job.ID))
		Expect(got.Status).To(Equal("completed"))
		Expect(got.ProviderJobID).To(Equal("tr-1"))
		Expect(got.ResultRef).To(Equal(ref))
		Expect(got.ErrorMessage).To(BeEmpty())
	})
})

type testwriter struct {
	mu     sync.Mutex
	events []cloudevents.Event
	topics []string
	closed bool
}

func newTestWriter() *testwriter {
	return &testwriter{}
}

func (t *testwriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
	t.topics = append(t.topics, topic)
	return nil
}

func (t *testwriter) Close(_ context.Context) error {
	t.closed = true
	return nil
}

func (t *testwriter) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

func (t *testwriter) Events() []cloudevents.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]cloudevents.Event(nil), t.events...)
}

func (t *testwriter) Topics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.topics...)
}
