package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// LoginResp represents the response returned by the server on login
type LoginResp struct {
	Status string `json:"status"`
	Token  string `json:"token"`
}

func main() {
	// --- Command-line flags ---
	var server string
	var wsHost string
	var duration int
	var concurrency int
	var csvFile string
	var trimPercent float64

	flag.StringVar(&server, "server", "http://localhost:3010", "server base URL")
	flag.StringVar(&wsHost, "ws", "localhost:3010", "websocket host:port")
	flag.IntVar(&duration, "duration", 30, "duration in seconds")
	flag.IntVar(&concurrency, "c", 50, "number of concurrent goroutines / users")
	flag.StringVar(&csvFile, "csv", "latencies.csv", "CSV file to save latencies")
	flag.Float64Var(&trimPercent, "trim", 1.0, "percent of latency to trim from top and bottom for trimmed mean")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	// --- Log in one user per goroutine ---
	fmt.Printf("Logging in %d users...\n", concurrency)
	users := make([]LoginResp, concurrency)
	for i := 0; i < concurrency; i++ {
		payload := map[string]string{"username": fmt.Sprintf("load-user-%d-%d", i, time.Now().UnixNano())}
		b, _ := json.Marshal(payload)

		resp, err := client.Post(server+"/login", "application/json", bytes.NewReader(b))
		if err != nil {
			panic(fmt.Sprintf("failed to log in user: %v", err))
		}

		if err := json.NewDecoder(resp.Body).Decode(&users[i]); err != nil {
			resp.Body.Close()
			panic(fmt.Sprintf("failed to decode login response: %v", err))
		}
		resp.Body.Close()
	}
	fmt.Println("Users logged in.")

	// --- Prepare concurrency test ---
	stopTime := time.Now().Add(time.Duration(duration) * time.Second)
	var wg sync.WaitGroup

	// Atomic counters for thread-safe tracking
	var posts int64
	var acksOK int64
	var acksFailed int64

	latencySlices := make([][]float64, concurrency) // each goroutine records post->ack latencies

	// --- Start concurrent timeline sessions ---
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			user := users[idx]
			var localLatencies []float64

			u := url.URL{
				Scheme:   "ws",
				Host:     wsHost,
				Path:     "/timeline",
				RawQuery: "token=" + url.QueryEscape(user.Token),
			}
			conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
			if err != nil {
				fmt.Printf("Dial error: %v\n", err)
				return
			}
			defer conn.Close()

			type frame struct {
				Type   string `json:"type"`
				Status string `json:"status,omitempty"`
				Text   string `json:"text,omitempty"`
			}

			// Post until the test duration ends, measuring post->ack latency.
			// Delivered posts from other sessions are read and discarded.
			for time.Now().Before(stopTime) {
				start := time.Now()
				out := frame{Type: "post", Text: fmt.Sprintf("load test post %d", time.Now().UnixNano())}
				if err := conn.WriteJSON(out); err != nil {
					fmt.Printf("Write error: %v\n", err)
					return
				}
				atomic.AddInt64(&posts, 1)

				for {
					var in frame
					if err := conn.ReadJSON(&in); err != nil {
						fmt.Printf("Read error: %v\n", err)
						return
					}
					if in.Type != "ack" {
						continue // timeline delivery, not our ack
					}
					lat := time.Since(start).Seconds() * 1000 // latency in ms
					localLatencies = append(localLatencies, lat)
					if in.Status == "SUCCESS" {
						atomic.AddInt64(&acksOK, 1)
					} else {
						atomic.AddInt64(&acksFailed, 1)
					}
					break
				}
			}

			latencySlices[idx] = localLatencies
		}(i)
	}

	wg.Wait()

	// --- Merge all latencies ---
	var allLatencies []float64
	for _, slice := range latencySlices {
		allLatencies = append(allLatencies, slice...)
	}
	sort.Float64s(allLatencies)

	// --- Compute statistics ---
	trimmedMeanVal := trimmedMean(allLatencies, trimPercent)
	p50 := percentile(allLatencies, 50)
	p90 := percentile(allLatencies, 90)
	p99 := percentile(allLatencies, 99)

	fmt.Printf("Posts: %d  Acked OK: %d  Acked failed: %d\n", posts, acksOK, acksFailed)
	fmt.Printf("Ack latency (ms): trimmed_mean=%.2f p50=%.2f p90=%.2f p99=%.2f\n", trimmedMeanVal, p50, p90, p99)

	// --- Save latencies to CSV ---
	f, err := os.Create(csvFile)
	if err != nil {
		fmt.Printf("Failed to create CSV file: %v\n", err)
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	w.Write([]string{"latency_ms"})
	for _, d := range allLatencies {
		w.Write([]string{fmt.Sprintf("%.3f", d)})
	}
	fmt.Printf("Saved latencies to %s\n", csvFile)
}

// trimmedMean calculates mean latency after trimming top/bottom trimPercent values
func trimmedMean(data []float64, trimPercent float64) float64 {
	if len(data) == 0 {
		return 0
	}
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = len(data) / 2
	}
	trimmed := data[trim : len(data)-trim]
	var sum float64
	for _, v := range trimmed {
		sum += v
	}
	return sum / float64(len(trimmed))
}

// percentile calculates the p-th percentile from sorted data
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	k := (p / 100.0) * float64(len(data)-1)
	f := int(k)
	c := f + 1
	if c >= len(data) {
		return data[len(data)-1]
	}
	d0 := data[f]*(float64(c)-k) + data[c]*(k-float64(f))
	return d0
}
