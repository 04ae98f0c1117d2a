package inventory

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pantrypal/pantry-tracker/internal/capture"
	"github.com/pantrypal/pantry-tracker/internal/vision"
)

var _ = Describe("Server", func() {
	var (
		db       *mockDB
		storage  *mockStorage
		analyzer *mockAnalyzer
		service  *Service
		server   *Server
		auth     BasicAuth
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		analyzer = &mockAnalyzer{
			classification: vision.Classification{Kind: vision.KindProduct},
			result: &vision.Result{
				Kind: vision.KindProduct,
				Product: &vision.ProductData{
					Name:       "Apples",
					Quantity:   6,
					Category:   "produce",
					Confidence: vision.ConfidenceHigh,
				},
			},
		}
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		service = NewServiceWithDeps(db, analyzer, storage, capture.Options{},
			&seqIDGenerator{}, &fixedTimeSource{now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)})
		server = NewServer(service, auth)
	})

	do := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		return rec
	}

	uploadRequest := func(fields map[string]string, filename string, data []byte) *http.Request {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		for k, v := range fields {
			Expect(writer.WriteField(k, v)).To(Succeed())
		}
		if filename != "" {
			part, err := writer.CreateFormFile("file", filename)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write(data)
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(writer.Close()).To(Succeed())

		req := httptest.NewRequest("POST", "/api/scans", &body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req
	}

	createScan := func() View {
		rec := do(uploadRequest(nil, "apples.jpg", testJPEG()))
		Expect(rec.Code).To(Equal(http.StatusCreated))

		var view View
		Expect(json.Unmarshal(rec.Body.Bytes(), &view)).To(Succeed())
		return view
	}

	pollUntilReview := func(id string) View {
		var view View
		Eventually(func() State {
			rec := do(httptest.NewRequest("GET", "/api/scans/"+id, nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(json.Unmarshal(rec.Body.Bytes(), &view)).To(Succeed())
			return view.State
		}).Should(Equal(StateReview))
		return view
	}

	Describe("POST /api/scans", func() {
		It("starts a scan and returns the processing snapshot", func() {
			view := createScan()
			Expect(view.ID).NotTo(BeEmpty())
			Expect(view.State).To(Equal(StateProcessing))
		})

		It("rejects a request without a file", func() {
			rec := do(uploadRequest(nil, "", nil))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects an unreadable image", func() {
			rec := do(uploadRequest(nil, "junk.jpg", []byte("not an image")))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("Could not read the image"))
		})

		It("reports camera permission denial distinctly", func() {
			rec := do(uploadRequest(map[string]string{"permission_denied": "true"}, "", nil))
			Expect(rec.Code).To(Equal(http.StatusForbidden))
			Expect(rec.Body.String()).To(ContainSubstring("camera permission"))
		})
	})

	Describe("GET /api/scans/{id}", func() {
		It("reaches review with the extracted items", func() {
			view := createScan()
			view = pollUntilReview(view.ID)

			Expect(view.Items).To(HaveLen(1))
			Expect(view.Items[0].Name).To(Equal("Apples"))
			Expect(view.Progress).To(Equal(100))
		})

		It("returns 404 for an unknown scan", func() {
			rec := do(httptest.NewRequest("GET", "/api/scans/nope", nil))
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /api/scans/{id}/image", func() {
		It("serves the stored capture", func() {
			view := createScan()
			pollUntilReview(view.ID)

			rec := do(httptest.NewRequest("GET", "/api/scans/"+view.ID+"/image", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("image/jpeg"))
			Expect(rec.Body.Len()).NotTo(BeZero())
		})
	})

	Describe("PATCH /api/scans/{id}/items/{index}", func() {
		It("applies field edits and quantity deltas", func() {
			view := createScan()
			pollUntilReview(view.ID)

			body := strings.NewReader(`{"name": "Green Apples", "quantity_delta": -2}`)
			rec := do(httptest.NewRequest("PATCH", "/api/scans/"+view.ID+"/items/0", body))
			Expect(rec.Code).To(Equal(http.StatusOK))

			var updated View
			Expect(json.Unmarshal(rec.Body.Bytes(), &updated)).To(Succeed())
			Expect(updated.Items[0].Name).To(Equal("Green Apples"))
			Expect(updated.Items[0].Quantity).To(Equal(4))
		})

		It("rejects an out-of-range index", func() {
			view := createScan()
			pollUntilReview(view.ID)

			body := strings.NewReader(`{"name": "x"}`)
			rec := do(httptest.NewRequest("PATCH", "/api/scans/"+view.ID+"/items/9", body))
			Expect(rec.Code).To(Equal(http.StatusConflict))
		})
	})

	Describe("DELETE /api/scans/{id}/items/{index}", func() {
		It("removes the item and returns the emptied snapshot", func() {
			view := createScan()
			pollUntilReview(view.ID)

			rec := do(httptest.NewRequest("DELETE", "/api/scans/"+view.ID+"/items/0", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))

			var updated View
			Expect(json.Unmarshal(rec.Body.Bytes(), &updated)).To(Succeed())
			Expect(updated.Items).To(BeEmpty())
		})
	})

	Describe("POST /api/scans/{id}/commit", func() {
		It("persists the items and reports the count", func() {
			view := createScan()
			pollUntilReview(view.ID)

			body := strings.NewReader(`{}`)
			rec := do(httptest.NewRequest("POST", "/api/scans/"+view.ID+"/commit", body))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"committed": 1}`))

			items, _ := db.ListItems()
			Expect(items).To(HaveLen(1))
		})

		It("rejects committing while still processing", func() {
			analyzer.classifyErr = vision.ErrTimeout
			view := createScan()
			Eventually(func() string {
				rec := do(httptest.NewRequest("GET", "/api/scans/"+view.ID, nil))
				var v View
				Expect(json.Unmarshal(rec.Body.Bytes(), &v)).To(Succeed())
				return v.Error
			}).ShouldNot(BeEmpty())

			rec := do(httptest.NewRequest("POST", "/api/scans/"+view.ID+"/commit", strings.NewReader(`{}`)))
			Expect(rec.Code).To(Equal(http.StatusConflict))
		})
	})

	Describe("POST /api/scans/{id}/retry", func() {
		It("returns 404 for an unknown scan", func() {
			rec := do(httptest.NewRequest("POST", "/api/scans/nope/retry", nil))
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("DELETE /api/scans/{id}", func() {
		It("discards the session", func() {
			view := createScan()
			pollUntilReview(view.ID)

			rec := do(httptest.NewRequest("DELETE", "/api/scans/"+view.ID, nil))
			Expect(rec.Code).To(Equal(http.StatusNoContent))

			rec = do(httptest.NewRequest("GET", "/api/scans/"+view.ID, nil))
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("inventory endpoints", func() {
		It("lists and deletes items", func() {
			Expect(db.SaveItems([]*Item{{ID: "item-1", Name: "Milk"}})).To(Succeed())

			rec := do(httptest.NewRequest("GET", "/api/inventory", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))

			var items []*Item
			Expect(json.Unmarshal(rec.Body.Bytes(), &items)).To(Succeed())
			Expect(items).To(HaveLen(1))

			rec = do(httptest.NewRequest("DELETE", "/api/inventory/item-1", nil))
			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(db.items).To(BeEmpty())
		})
	})

	Describe("shopping list endpoints", func() {
		It("adds and lists entries", func() {
			body := strings.NewReader(`{"items": [{"name": "Milk"}, {"name": "Eggs", "quantity": 12}]}`)
			rec := do(httptest.NewRequest("POST", "/api/shopping-list", body))
			Expect(rec.Code).To(Equal(http.StatusCreated))

			rec = do(httptest.NewRequest("GET", "/api/shopping-list", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))

			var entries []*ShoppingItem
			Expect(json.Unmarshal(rec.Body.Bytes(), &entries)).To(Succeed())
			Expect(entries).To(HaveLen(2))
		})

		It("rejects an empty batch", func() {
			rec := do(httptest.NewRequest("POST", "/api/shopping-list", strings.NewReader(`{"items": []}`)))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	When("basic auth is configured", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		It("rejects requests without credentials", func() {
			rec := do(httptest.NewRequest("GET", "/api/inventory", nil))
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(rec.Header().Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("rejects wrong credentials", func() {
			req := httptest.NewRequest("GET", "/api/inventory", nil)
			req.SetBasicAuth("admin", "wrong")
			Expect(do(req).Code).To(Equal(http.StatusUnauthorized))
		})

		It("accepts matching credentials", func() {
			req := httptest.NewRequest("GET", "/api/inventory", nil)
			req.SetBasicAuth("admin", "secret")
			Expect(do(req).Code).To(Equal(http.StatusOK))
		})
	})
})

var _ = Describe("contentTypeFromExt", func() {
	It("maps known extensions", func() {
		Expect(contentTypeFromExt("photo.JPG")).To(Equal("image/jpeg"))
		Expect(contentTypeFromExt("scan.pdf")).To(Equal("application/pdf"))
		Expect(contentTypeFromExt("pic.heic")).To(Equal("image/heic"))
		Expect(contentTypeFromExt("file.bin")).To(Equal("application/octet-stream"))
	})
})
