package web_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/routekit/internal/web"
)

type detailedErr struct{}

func (detailedErr) Error() string { return "bad field" }
func (detailedErr) Unwrap() error { return web.ErrExtraction }
func (detailedErr) Details() map[string]string {
	return map[string]string{"field": "id"}
}

var _ = Describe("Errors", func() {
	DescribeTable("StatusFor",
		func(err error, status int) {
			Expect(web.StatusFor(err)).To(Equal(status))
		},
		Entry("not found", web.ErrNotFound, http.StatusNotFound),
		Entry("method not allowed", web.ErrMethodNotAllowed, http.StatusMethodNotAllowed),
		Entry("extraction", web.ErrExtraction, http.StatusBadRequest),
		Entry("rate limited", web.ErrRateLimited, http.StatusTooManyRequests),
		Entry("circuit open", web.ErrCircuitOpen, http.StatusServiceUnavailable),
		Entry("no upstream", web.ErrNoAvailableUpstream, http.StatusServiceUnavailable),
		Entry("timeout", web.ErrTimeout, http.StatusGatewayTimeout),
		Entry("upstream", web.ErrUpstream, http.StatusBadGateway),
		Entry("wrapped compute failure", fmt.Errorf("%w: %w", web.ErrCacheComputeFailed, errors.New("boom")), http.StatusInternalServerError),
		Entry("compute failure caused by timeout", fmt.Errorf("%w: %w", web.ErrCacheComputeFailed, web.ErrTimeout), http.StatusGatewayTimeout),
		Entry("unknown", errors.New("boom"), http.StatusInternalServerError),
	)

	It("should treat policy denials as short-circuits", func() {
		Expect(web.IsPolicyDenial(web.ErrRateLimited)).To(BeTrue())
		Expect(web.IsPolicyDenial(web.ErrCircuitOpen)).To(BeTrue())
		Expect(web.IsPolicyDenial(errors.New("boom"))).To(BeFalse())
	})

	Describe("ErrorResponse", func() {
		It("should render a structured body with details", func() {
			resp := web.ErrorResponse(detailedErr{})
			Expect(resp.Status).To(Equal(http.StatusBadRequest))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

			var body map[string]string
			Expect(json.Unmarshal(resp.Body, &body)).To(Succeed())
			Expect(body).To(HaveKeyWithValue("error", "extraction_error"))
			Expect(body).To(HaveKeyWithValue("field", "id"))
			Expect(resp.Cause).To(MatchError(web.ErrExtraction))
		})

		It("should hide internal error messages", func() {
			resp := web.ErrorResponse(errors.New("db password is hunter2"))
			Expect(string(resp.Body)).NotTo(ContainSubstring("hunter2"))
		})

		It("should flag policy denials as short-circuit responses", func() {
			resp := web.ErrorResponse(web.ErrRateLimited)
			Expect(resp.ShortCircuit).To(BeTrue())
			Expect(web.Classify(resp)).To(Equal(web.OutcomeShortCircuit))
		})
	})

	DescribeTable("Classify",
		func(resp *web.Response, outcome web.Outcome) {
			Expect(web.Classify(resp)).To(Equal(outcome))
		},
		Entry("ok", web.Text(http.StatusOK, "ok"), web.OutcomeOK),
		Entry("client error", web.Text(http.StatusNotFound, ""), web.OutcomeClientError),
		Entry("handler error", web.Text(http.StatusBadGateway, ""), web.OutcomeHandlerError),
		Entry("nil", nil, web.OutcomeHandlerError),
	)
})
