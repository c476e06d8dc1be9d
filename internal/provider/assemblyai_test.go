package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/kubev2v/transcriber/internal/provider"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("assemblyai client", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("Submit", func() {
		It("submits the audio with the webhook", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.URL.Path).To(Equal("/v2/transcript"))
				Expect(r.Header.Get("Authorization")).To(Equal("key"))
				Expect(r.Header.Get("Content-Type")).To(Equal("application/json"))

				var body map[string]any
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				Expect(body["audio_url"]).To(Equal("https://blobs/audio.mp3"))
				Expect(body["language_detection"]).To(BeTrue())
				Expect(body["speaker_labels"]).To(BeFalse())
				Expect(body["webhook_url"]).To(Equal("https://svc/api/v1/webhooks/assemblyai/secret"))

				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id":"p1","status":"queued"}`))
			}))
			defer server.Close()

			c := provider.NewAssemblyAIClient(server.URL, "key", 5*time.Second)
			id, err := c.Submit(ctx, "https://blobs/audio.mp3", provider.SubmitOptions{LanguageDetection: true}, "https://svc/api/v1/webhooks/assemblyai/secret")
			Expect(err).To(BeNil())
			Expect(id).To(Equal("p1"))
		})

		It("omits the webhook when none is given", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var body map[string]any
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				Expect(body).NotTo(HaveKey("webhook_url"))
				_, _ = w.Write([]byte(`{"id":"p2","status":"queued"}`))
			}))
			defer server.Close()

			c := provider.NewAssemblyAIClient(server.URL, "key", 0)
			id, err := c.Submit(ctx, "https://blobs/audio.mp3", provider.SubmitOptions{}, "")
			Expect(err).To(BeNil())
			Expect(id).To(Equal("p2"))
		})

		It("fails when no id is returned", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"queued"}`))
			}))
			defer server.Close()

			c := provider.NewAssemblyAIClient(server.URL, "key", 0)
			_, err := c.Submit(ctx, "u", provider.SubmitOptions{}, "")
			Expect(err).NotTo(BeNil())
		})

		It("surfaces the provider error text", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"audio_url is not reachable"}`))
			}))
			defer server.Close()

			c := provider.NewAssemblyAIClient(server.URL, "key", 0)
			_, err := c.Submit(ctx, "u", provider.SubmitOptions{}, "")
			Expect(err).To(MatchError(ContainSubstring("audio_url is not reachable")))
			Expect(err).To(MatchError(ContainSubstring("400")))
		})
	})

	Describe("Fetch", func() {
		It("maps the transcript status and error", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodGet))
				Expect(r.URL.Path).To(Equal("/v2/transcript/p1"))
				_, _ = w.Write([]byte(`{"id":"p1","status":"error","error":"unsupported codec","language_code":"en"}`))
			}))
			defer server.Close()

			c := provider.NewAssemblyAIClient(server.URL, "key", 0)
			result, err := c.Fetch(ctx, "p1")
			Expect(err).To(BeNil())
			Expect(result.Status).To(Equal(provider.StatusError))
			Expect(result.ErrorText).To(Equal("unsupported codec"))
			Expect(result.LanguageCode).To(Equal("en"))
		})

		It("returns ErrNotFound for an unknown transcript", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":"Transcript lookup error, transcript id not found"}`))
			}))
			defer server.Close()

			c := provider.NewAssemblyAIClient(server.URL, "key", 0)
			_, err := c.Fetch(ctx, "nope")
			Expect(err).To(MatchError(provider.ErrNotFound))
		})

		It("fails when the server is unreachable", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			url := server.URL
			server.Close()

			c := provider.NewAssemblyAIClient(url, "key", time.Second)
			_, err := c.Fetch(ctx, "p1")
			Expect(err).To(MatchError(ContainSubstring("failed to call assemblyai")))
		})
	})

	Describe("ToFinalFormat", func() {
		It("downloads the srt export", func() {
			srt := "1\n00:00:00,000 --> 00:00:01,000\nhello\n"
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/v2/transcript/p1/srt"))
				_, _ = w.Write([]byte(srt))
			}))
			defer server.Close()

			c := provider.NewAssemblyAIClient(server.URL, "key", 0)
			data, err := c.ToFinalFormat(ctx, &provider.Result{ID: "p1", Status: provider.StatusCompleted})
			Expect(err).To(BeNil())
			Expect(string(data)).To(Equal(srt))
		})

		It("requires a transcript id", func() {
			c := provider.NewAssemblyAIClient("http://localhost", "key", 0)
			_, err := c.ToFinalFormat(ctx, &provider.Result{})
			Expect(err).NotTo(BeNil())
		})
	})

	Describe("Ping", func() {
		It("accepts a not found answer as a valid key", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}))
			defer server.Close()

			c := provider.NewAssemblyAIClient(server.URL, "key", 0)
			Expect(c.Ping(ctx)).To(Succeed())
		})

		It("reports an invalid key", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"Authentication error, API token missing/invalid"}`))
			}))
			defer server.Close()

			c := provider.NewAssemblyAIClient(server.URL, "bad", 0)
			Expect(c.Ping(ctx)).To(MatchError(provider.ErrUnauthorized))
		})
	})
})
