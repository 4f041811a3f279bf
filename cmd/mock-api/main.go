package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/shpitdev/datadash/pkg/mockapi"
)

func main() {
	addr := defaultString("MOCK_API_ADDR", ":8080")
	dataPath := defaultString("MOCK_API_DATA", "/data/dataset.csv")
	token := defaultString("MOCK_API_TOKEN", "")

	fs := flag.NewFlagSet("mock-api", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&dataPath, "data", dataPath, "CSV file served as the dataset")
	fs.StringVar(&token, "token", token, "Require this bearer token (also supports env: MOCK_API_TOKEN)")
	_ = fs.Parse(os.Args[1:])

	srv, err := mockapi.LoadFile(dataPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load dataset: %v\n", err)
		os.Exit(1)
	}
	srv.RequireBearerToken(token)

	_, _ = fmt.Fprintf(os.Stdout, "mock-api listening on %s (data=%s rows=%d)\n", addr, dataPath, srv.Rows())
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
