package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

// testPNG returns a small valid PNG image
func testPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

// decodeBody decodes a JSON request body into a generic map
func decodeBody(r *http.Request) map[string]any {
	var body map[string]any
	Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
	return body
}

var _ = Describe("Ollama", func() {
	var (
		server    *ghttp.Server
		extractor *Ollama
		doc       Document
		text      string
		err       error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		extractor, err = NewOllama(server.URL(), "llava")
		Expect(err).NotTo(HaveOccurred())
		doc = Document{Data: testPNG(), ContentType: "image/png", Type: Contractor}
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = extractor.Extract(context.Background(), doc)
	})

	When("the model answers with JSON", func() {
		var body map[string]any

		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					body = decodeBody(r)
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"message": map[string]any{
						"role":    "assistant",
						"content": "```json\n{\"items\": [{\"trade\": \"Roofing\", \"total\": 100}]}\n```",
					},
					"done": true,
				}),
			))
		})

		It("returns the cleaned JSON text", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal(`{"items": [{"trade": "Roofing", "total": 100}]}`))
		})

		It("requests deterministic JSON output", func() {
			Expect(body).To(HaveKeyWithValue("model", "llava"))
			Expect(body).To(HaveKeyWithValue("stream", false))
			Expect(body).To(HaveKeyWithValue("format", "json"))
			Expect(body["options"]).To(HaveKeyWithValue("temperature", BeNumerically("==", 0)))
		})

		It("attaches the image to the user message", func() {
			messages := body["messages"].([]any)
			Expect(messages).To(HaveLen(2))
			user := messages[1].(map[string]any)
			Expect(user).To(HaveKeyWithValue("role", "user"))
			Expect(user["images"]).To(ConsistOf(base64.StdEncoding.EncodeToString(doc.Data)))
		})
	})

	When("the server returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("returns an error with the status and body", func() {
			Expect(err).To(MatchError(ContainSubstring("status 500")))
			Expect(err).To(MatchError(ContainSubstring("model not loaded")))
		})
	})

	When("the model answers without JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"message": map[string]any{"role": "assistant", "content": "I cannot read this image."},
				"done":    true,
			}))
		})

		It("returns ErrNoJSON", func() {
			Expect(err).To(MatchError(ErrNoJSON))
		})
	})

	When("the document cannot be decoded", func() {
		BeforeEach(func() {
			doc = Document{Data: []byte("not an image"), ContentType: "image/jpeg"}
		})

		It("fails before calling the server", func() {
			Expect(err).To(HaveOccurred())
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})
})

var _ = Describe("Anthropic", func() {
	var (
		server    *ghttp.Server
		extractor *Anthropic
		doc       Document
		text      string
		err       error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		extractor, err = NewAnthropic("test-key", "", server.URL())
		Expect(err).NotTo(HaveOccurred())
		doc = Document{Data: []byte("%PDF-1.4 estimate"), ContentType: "application/pdf", Type: Carrier}
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = extractor.Extract(context.Background(), doc)
	})

	messageResponse := func(content string) map[string]any {
		return map[string]any{
			"id":   "msg_test_001",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": content},
			},
			"model":       defaultAnthropicModel,
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 5},
		}
	}

	When("the document is a PDF", func() {
		var body map[string]any

		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1/messages"),
				ghttp.VerifyHeaderKV("x-api-key", "test-key"),
				func(w http.ResponseWriter, r *http.Request) {
					body = decodeBody(r)
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, messageResponse(`{"items": [], "metadata": {"documentType": "auto"}}`)),
			))
		})

		It("returns the model's JSON", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal(`{"items": [], "metadata": {"documentType": "auto"}}`))
		})

		It("uses the default model at temperature zero", func() {
			Expect(body).To(HaveKeyWithValue("model", defaultAnthropicModel))
			Expect(body).To(HaveKeyWithValue("temperature", BeNumerically("==", 0)))
			Expect(body).To(HaveKey("system"))
		})

		It("sends the PDF as a base64 document block", func() {
			messages := body["messages"].([]any)
			Expect(messages).To(HaveLen(1))
			content := messages[0].(map[string]any)["content"].([]any)
			Expect(content).To(HaveLen(2))

			document := content[0].(map[string]any)
			Expect(document).To(HaveKeyWithValue("type", "document"))
			Expect(document["source"]).To(And(
				HaveKeyWithValue("type", "base64"),
				HaveKeyWithValue("media_type", "application/pdf"),
				HaveKeyWithValue("data", base64.StdEncoding.EncodeToString(doc.Data)),
			))

			prompt := content[1].(map[string]any)
			Expect(prompt).To(HaveKeyWithValue("type", "text"))
			Expect(prompt["text"]).To(ContainSubstring("an insurance carrier"))
		})
	})

	When("the document is an image", func() {
		var body map[string]any

		BeforeEach(func() {
			doc = Document{Data: testPNG(), ContentType: "image/png", Type: Contractor}
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1/messages"),
				func(w http.ResponseWriter, r *http.Request) {
					body = decodeBody(r)
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, messageResponse(`{"items": []}`)),
			))
		})

		It("sends a base64 image block", func() {
			Expect(err).NotTo(HaveOccurred())
			content := body["messages"].([]any)[0].(map[string]any)["content"].([]any)
			block := content[0].(map[string]any)
			Expect(block).To(HaveKeyWithValue("type", "image"))
			Expect(block["source"]).To(HaveKeyWithValue("media_type", "image/png"))
		})
	})

	When("the API fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusInternalServerError, map[string]any{
				"type":  "error",
				"error": map[string]any{"type": "api_error", "message": "overloaded"},
			}))
		})

		It("returns an error without retrying", func() {
			Expect(err).To(HaveOccurred())
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	When("no api key is given", func() {
		It("refuses to build the client", func() {
			_, err := NewAnthropic("", "", "")
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("NewGemini", func() {
	It("requires an api key", func() {
		_, err := NewGemini("", "")
		Expect(err).To(MatchError(ContainSubstring("api key is required")))
	})
})
