package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fulldump/apitest"
)

// Save writes the request/response pair as a markdown API example into
// API_EXAMPLES_PATH. It does nothing if the variable is not set.
func Save(response *apitest.Response, title, description string) {

	examplesPath := os.Getenv("API_EXAMPLES_PATH")
	if examplesPath == "" {
		return
	}

	request := response.Request
	target := request.URL.Path
	if request.URL.RawQuery != "" {
		target += "?" + request.URL.RawQuery
	}
	requestBody := indentJSON(response.BodyRequestString())

	md := &strings.Builder{}
	fmt.Fprintf(md, "# %s\n\n", title)
	if description = trimIndent(description); description != "" {
		md.WriteString(description + "\n\n")
	}

	md.WriteString("Curl example:\n\n```sh\ncurl")
	if request.Method != http.MethodGet {
		md.WriteString(" -X " + request.Method)
	}
	fmt.Fprintf(md, " \"https://example.com%s\"", target)
	for _, k := range sortedKeys(request.Header) {
		for _, v := range request.Header[k] {
			fmt.Fprintf(md, " \\\n  -H \"%s: %s\"", k, v)
		}
	}
	if requestBody != "" {
		fmt.Fprintf(md, " \\\n  -d '%s'", requestBody)
	}
	md.WriteString("\n```\n\n")

	md.WriteString("HTTP request/response example:\n\n```http\n")
	fmt.Fprintf(md, "%s %s %s\nHost: example.com\n", request.Method, target, request.Proto)
	writeHeaders(md, request.Header)
	md.WriteString("\n" + requestBody + "\n\n")

	fmt.Fprintf(md, "%s %s\n", response.Proto, response.Status)
	writeHeaders(md, response.Header)
	md.WriteString("\n" + indentJSON(response.BodyString()) + "\n```\n")

	filename := strings.ReplaceAll(strings.ToLower(title), " ", "_") + ".md"
	p := filepath.Join(examplesPath, filepath.Clean(filename))
	err := os.WriteFile(p, []byte(md.String()), 0666)
	if err != nil {
		fmt.Println("Saving err:", err)
	}
}

func sortedKeys(h http.Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeHeaders(md *strings.Builder, h http.Header) {
	for _, k := range sortedKeys(h) {
		if k == "Date" {
			// stable output between runs
			md.WriteString("Date: Mon, 15 Aug 2022 02:08:13 GMT\n")
			continue
		}
		for _, v := range h[k] {
			fmt.Fprintf(md, "%s: %s\n", k, v)
		}
	}
}

func indentJSON(body string) string {
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return body
	}
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return body
	}
	return string(b)
}

// trimIndent removes the common leading tabs of a raw string literal.
func trimIndent(d string) string {
	lines := strings.Split(strings.Trim(d, "\n"), "\n")

	common := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, "\t"))
		if common < 0 || n < common {
			common = n
		}
	}
	if common <= 0 {
		return strings.TrimSpace(d)
	}

	prefix := strings.Repeat("\t", common)
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
