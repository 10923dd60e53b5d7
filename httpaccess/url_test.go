package httpaccess_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/JohnPlummer/jp-go-access/httpaccess"
)

var _ = Describe("SplitURL", func() {
	DescribeTable("separates the query from the address",
		func(raw, base string, params map[string]string) {
			gotBase, gotParams, err := httpaccess.SplitURL(raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(gotBase).To(Equal(base))
			Expect(gotParams).To(Equal(params))
		},
		Entry("two parameters",
			"https://www.example.com/ajax/book/category?_csrfToken=ad1d&bookId=3690449",
			"https://www.example.com/ajax/book/category",
			map[string]string{"_csrfToken": "ad1d", "bookId": "3690449"}),
		Entry("no query", "http://host:8080/path", "http://host:8080/path", map[string]string{}),
		Entry("repeated key keeps the first value", "http://h/p?a=1&a=2", "http://h/p", map[string]string{"a": "1"}),
		Entry("escaped value", "http://h/p?q=a%20b", "http://h/p", map[string]string{"q": "a b"}),
		Entry("fragment dropped", "http://h/p?x=1#top", "http://h/p", map[string]string{"x": "1"}),
	)

	It("rejects malformed URLs", func() {
		_, _, err := httpaccess.SplitURL("http://[::1")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ParseCurl", func() {
	It("recovers method, url, headers and body", func() {
		cmd, err := httpaccess.ParseCurl(`curl 'https://api.example.com/items?page=2' \
  -X POST \
  -H 'Accept: application/json' \
  -H 'X-Trace: abc' \
  -d '{"name":"widget"}' \
  --proxy 'http://proxy.local:3128'`)
		Expect(err).NotTo(HaveOccurred())

		Expect(cmd.Request.Method).To(Equal("POST"))
		Expect(cmd.Request.Target).To(Equal("https://api.example.com/items?page=2"))
		Expect(cmd.Request.Header).To(HaveKeyWithValue("Accept", []string{"application/json"}))
		Expect(cmd.Request.Header).To(HaveKeyWithValue("X-Trace", []string{"abc"}))
		Expect(string(cmd.Request.Body)).To(Equal(`{"name":"widget"}`))
		Expect(cmd.BaseURL).To(Equal("https://api.example.com/items"))
		Expect(cmd.Params).To(Equal(map[string]string{"page": "2"}))
		Expect(cmd.Proxy).To(Equal("http://proxy.local:3128"))
	})

	It("defaults to GET", func() {
		cmd, err := httpaccess.ParseCurl(`curl "http://h/p" -H "Cache-Control: no-cache" --compressed`)
		Expect(err).NotTo(HaveOccurred())
		Expect(cmd.Request.Method).To(Equal("GET"))
		Expect(cmd.Request.Header).To(HaveKeyWithValue("Cache-Control", []string{"no-cache"}))
		Expect(cmd.Request.Body).To(BeNil())
		Expect(cmd.Proxy).To(BeEmpty())
	})

	It("does not mistake a leading proxy for the url", func() {
		cmd, err := httpaccess.ParseCurl(`curl -x http://proxy.local:3128 https://example.com/`)
		Expect(err).NotTo(HaveOccurred())
		Expect(cmd.Request.Target).To(Equal("https://example.com/"))
		Expect(cmd.Proxy).To(Equal("http://proxy.local:3128"))
	})

	It("fails without a url", func() {
		_, err := httpaccess.ParseCurl(`curl -H 'Accept: */*'`)
		Expect(err).To(MatchError(httpaccess.ErrNoCurlURL))
	})
})
