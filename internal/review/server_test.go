package review

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zombor/estimate-analyzer/internal/supervisor"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		extractor   *mockExtractor
		clock       *fakeClock
		sup         *supervisor.Supervisor
		registry    *prometheus.Registry
		server      *Server
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		extractor = newMockExtractor()
		clock = &fakeClock{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
		registry = prometheus.NewRegistry()
		sup = supervisor.New(supervisor.Config{Clock: clock, Metrics: supervisor.NewMetrics(registry)})
	})

	JustBeforeEach(func() {
		service := NewServiceWithDeps(db, extractor, storage, sup, Config{}, &mockIDGenerator{id: "test-id-123"}, &mockTimeSource{now: clock.now})
		server = NewServerWithMux(service, registry, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	decode := func(resp *http.Response) map[string]any {
		defer resp.Body.Close()
		var body map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
		return body
	}

	postJSON := func(path, body string) *http.Response {
		resp, err := http.Post(ghttpServer.URL()+path, "application/json", strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	upload := func(filename, contentType, documentType string, data []byte) *http.Response {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		if documentType != "" {
			Expect(writer.WriteField("documentType", documentType)).To(Succeed())
		}
		if data != nil {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
			if contentType != "" {
				h.Set("Content-Type", contentType)
			}
			part, err := writer.CreatePart(h)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write(data)
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(ghttpServer.URL()+"/api/reviews", writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	Describe("POST /api/classify", func() {
		When("the text is a clear property estimate", func() {
			It("returns the verdict", func() {
				resp := postJSON("/api/classify", `{"text": "Roof and gutter replacement", "lineItems": ["Drywall patch", "Kitchen cabinet"]}`)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(decode(resp)).To(Equal(map[string]any{
					"classification": "PROPERTY",
					"confidence":     "HIGH",
					"scores":         map[string]any{"property": 5.0, "auto": 0.0, "commercial": 0.0},
				}))
			})
		})

		When("the text is ambiguous", func() {
			It("returns 400 with the reason and scores", func() {
				resp := postJSON("/api/classify", `{"text": "roof shingle drywall bumper fender radiator"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				body := decode(resp)
				Expect(body).To(HaveKeyWithValue("classification", "AMBIGUOUS"))
				Expect(body).To(HaveKeyWithValue("reason", "multiple estimate types detected"))
				Expect(body).To(HaveKeyWithValue("scores", map[string]any{"property": 3.0, "auto": 3.0, "commercial": 0.0}))
				Expect(body).To(HaveKey("error"))
			})
		})

		When("nothing is sent", func() {
			It("returns 400 with an error", func() {
				resp := postJSON("/api/classify", `{}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				body := decode(resp)
				Expect(body).To(HaveKey("error"))
				Expect(body).NotTo(HaveKey("classification"))
			})
		})

		When("the body is not JSON", func() {
			It("returns 400", func() {
				resp := postJSON("/api/classify", `not json`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})
	})

	Describe("POST /api/reviews", func() {
		When("the upload succeeds", func() {
			It("returns 201 with the review", func() {
				resp := upload("estimate.png", "image/png", "contractor", []byte("fake image"))
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))

				body := decode(resp)
				Expect(body).To(HaveKeyWithValue("id", "test-id-123"))
				Expect(body).To(HaveKeyWithValue("source", "contractor"))
				Expect(body["classification"]).To(HaveKeyWithValue("classification", "PROPERTY"))
				Expect(body["analysis"]).To(HaveKeyWithValue("documentType", "property"))
			})
		})

		When("the part has no content type", func() {
			It("detects it from the extension", func() {
				resp := upload("estimate.pdf", "", "carrier", []byte("fake pdf"))
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				resp.Body.Close()
				Expect(extractor.lastDoc.ContentType).To(Equal("application/pdf"))
			})
		})

		When("the document type is missing", func() {
			It("returns 400", func() {
				resp := upload("estimate.png", "image/png", "", []byte("fake image"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decode(resp)["error"]).To(ContainSubstring("documentType"))
			})
		})

		When("no file is attached", func() {
			It("returns 400", func() {
				resp := upload("", "", "contractor", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("the estimate is rejected", func() {
			BeforeEach(func() {
				extractor.text = unknownEstimate
			})

			It("returns 422 with the verdict", func() {
				resp := upload("estimate.png", "image/png", "contractor", []byte("fake image"))
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				body := decode(resp)
				Expect(body).To(HaveKeyWithValue("classification", "UNKNOWN"))
				Expect(body).To(HaveKeyWithValue("reason", "insufficient recognizable content"))
			})
		})

		When("the extractor fails", func() {
			BeforeEach(func() {
				extractor.errs = []error{errors.New("model unavailable")}
			})

			It("returns 502", func() {
				resp := upload("estimate.png", "image/png", "contractor", []byte("fake image"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				resp.Body.Close()
			})
		})

		When("extraction exceeds the runtime ceiling", func() {
			BeforeEach(func() {
				extractor.onExtract = func() { clock.Advance(time.Minute) }
			})

			It("returns 504", func() {
				resp := upload("estimate.png", "image/png", "contractor", []byte("fake image"))
				Expect(resp.StatusCode).To(Equal(http.StatusGatewayTimeout))
				resp.Body.Close()
			})
		})

		When("the database write fails", func() {
			BeforeEach(func() {
				db.saveErr = errors.New("disk full")
			})

			It("returns 503", func() {
				resp := upload("estimate.png", "image/png", "contractor", []byte("fake image"))
				Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
				resp.Body.Close()
			})
		})
	})

	Describe("stored reviews", func() {
		BeforeEach(func() {
			storage.files["k1"] = []byte("stored image")
			db.reviews["r1"] = &Review{
				ID:       "r1",
				Document: DocumentRef{Key: "k1", ContentType: "image/png", Filename: "one.png"},
				Source:   "carrier",
			}
		})

		It("lists reviews", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/reviews")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

			var reviews []*Review
			Expect(json.NewDecoder(resp.Body).Decode(&reviews)).To(Succeed())
			Expect(reviews).To(HaveLen(1))
		})

		It("gets a review", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/reviews/r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(resp)).To(HaveKeyWithValue("id", "r1"))
		})

		It("returns 404 for unknown reviews", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/reviews/missing")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})

		It("serves the original document", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/reviews/r1/file")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("stored image")))
		})

		It("reanalyzes a review", func() {
			resp := postJSON("/api/reviews/r1/analyze", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(resp)["classification"]).To(HaveKeyWithValue("classification", "PROPERTY"))
			Expect(extractor.lastDoc.Data).To(Equal([]byte("stored image")))
		})

		It("exports a workbook", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/reviews/r1/export.xlsx")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("spreadsheetml"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("review-r1.xlsx"))
		})

		It("deletes a review", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/reviews/r1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.reviews).To(BeEmpty())
		})
	})

	Describe("operations", func() {
		BeforeEach(func() {
			sup.Start("ai_extraction", nil)
			clock.Advance(250 * time.Millisecond)
			sup.End("ai_extraction", true, nil, nil)
		})

		It("lists the log", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/operations")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			var entries []supervisor.Entry
			Expect(json.NewDecoder(resp.Body).Decode(&entries)).To(Succeed())
			Expect(entries).To(HaveLen(1))
			Expect(*entries[0].DurationMs).To(Equal(int64(250)))
		})

		It("summarizes the log", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/operations/summary")
			Expect(err).NotTo(HaveOccurred())
			body := decode(resp)
			Expect(body).To(HaveKeyWithValue("total", 1.0))
			Expect(body).To(HaveKeyWithValue("maxDurationMs", 250.0))
		})

		It("clears the log", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/operations", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(sup.Entries()).To(BeEmpty())
		})

		It("exports pipeline metrics", func() {
			resp, err := http.Get(ghttpServer.URL() + "/metrics")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`estimate_analyzer_pipeline_operations_total{operation="ai_extraction",result="success"} 1`))
		})
	})

	Describe("CORS preflight", func() {
		It("answers OPTIONS with 204", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/reviews", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("DELETE"))
		})
	})
})
