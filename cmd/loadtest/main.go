// Command loadtest fires citation and theme queries at a running searcher
// and reports throughput, latency percentiles, cache hits and status codes
// for each mode.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Quotations for citation mode, paraphrased themes for theme mode.
var (
	citationQueries = []string{
		"Capitu tinha olhos de cigana oblíqua e dissimulada.",
		"Verdes mares bravios de minha terra natal, onde canta a jandaia nas frondes da carnaúba.",
		"Ao vencedor, as batatas.",
		"Não tive filhos, não transmiti a nenhuma criatura o legado da nossa miséria.",
		"Minha terra tem palmeiras onde canta o sabiá.",
		"O sertanejo é, antes de tudo, um forte.",
		"A vida é um combate que aos fracos abate e aos fortes e bravos só pode exaltar.",
	}
	themeQueries = []string{
		"O ciúme consome o narrador, que desconfia da esposa e do melhor amigo.",
		"Uma jovem indígena se apaixona por um guerreiro estrangeiro na floresta.",
		"A cidade cresce e os cortiços se enchem de trabalhadores explorados.",
		"O amor impossível termina em morte e saudade.",
		"A escravidão marca a vida na fazenda e a consciência do senhor.",
	}
)

type result struct {
	mode     string
	status   int
	latency  time.Duration
	returned int
	cacheHit bool
	err      error
}

// modeStats accumulates the results of one search mode.
type modeStats struct {
	requests  int
	failures  int
	cacheHits int
	returned  int
	latencies []time.Duration
	codes     map[int]int
}

type recorder struct {
	mu     sync.Mutex
	byMode map[string]*modeStats
}

func (r *recorder) add(res result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byMode[res.mode]
	if !ok {
		s = &modeStats{codes: make(map[int]int)}
		r.byMode[res.mode] = s
	}
	s.requests++
	if res.err != nil {
		s.failures++
		s.codes[0]++
		return
	}
	s.codes[res.status]++
	if res.status/100 != 2 {
		s.failures++
	}
	if res.cacheHit {
		s.cacheHits++
	}
	s.returned += res.returned
	s.latencies = append(s.latencies, res.latency)
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the searcher")
	workers := flag.Int("concurrency", 10, "concurrent clients")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	mode := flag.String("mode", "mixed", "citation, theme or mixed")
	rps := flag.Float64("rps", 0, "overall request rate cap, 0 for unlimited")
	queryFile := flag.String("queries", "", "file with one query per line, used for every mode")
	flag.Parse()

	modes, err := modesFor(*mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	queries := map[string][]string{"citation": citationQueries, "theme": themeQueries}
	if *queryFile != "" {
		lines, err := readQueries(*queryFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		queries = map[string][]string{"citation": lines, "theme": lines}
	}

	fmt.Printf("Scriptura load test: %s, modes %v, %d clients for %s\n\n", *baseURL, modes, *workers, *duration)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Inf, 0)
	if *rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(*rps), 1)
	}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        *workers * 2,
			MaxIdleConnsPerHost: *workers * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	rec := &recorder{byMode: make(map[string]*modeStats)}
	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := w; ctx.Err() == nil; i++ {
				if limiter.Wait(ctx) != nil {
					return
				}
				m := modes[i%len(modes)]
				qs := queries[m]
				res := search(ctx, client, *baseURL, m, qs[i%len(qs)])
				if ctx.Err() != nil {
					return
				}
				rec.add(res)
			}
		}()
	}
	wg.Wait()

	if !report(rec, time.Since(start)) {
		fmt.Println("\nno requests completed, is the searcher running?")
		os.Exit(1)
	}
}

func modesFor(mode string) ([]string, error) {
	switch mode {
	case "citation", "theme":
		return []string{mode}, nil
	case "mixed":
		return []string{"citation", "theme"}, nil
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s holds no queries", path)
	}
	return out, nil
}

func search(ctx context.Context, client *http.Client, baseURL, mode, query string) result {
	body, _ := json.Marshal(map[string]string{"text": query})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/search/"+mode, bytes.NewReader(body))
	if err != nil {
		return result{mode: mode, err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return result{mode: mode, err: err, latency: time.Since(start)}
	}
	defer resp.Body.Close()

	var payload struct {
		Count int `json:"count"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return result{
		mode:     mode,
		status:   resp.StatusCode,
		latency:  time.Since(start),
		returned: payload.Count,
		cacheHit: resp.Header.Get("X-Cache") == "HIT",
	}
}

// report prints one block per mode and says whether anything completed.
func report(rec *recorder, elapsed time.Duration) bool {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	modes := make([]string, 0, len(rec.byMode))
	for m := range rec.byMode {
		modes = append(modes, m)
	}
	sort.Strings(modes)

	completed := 0
	for _, m := range modes {
		s := rec.byMode[m]
		completed += len(s.latencies)
		fmt.Printf("== %s ==\n", m)
		fmt.Printf("requests   %d (%.1f/s), failed %d (%.2f%%)\n",
			s.requests, float64(s.requests)/elapsed.Seconds(), s.failures, 100*float64(s.failures)/float64(s.requests))
		if n := len(s.latencies); n > 0 {
			fmt.Printf("cache hits %d (%.1f%%), avg results %.1f\n",
				s.cacheHits, 100*float64(s.cacheHits)/float64(n), float64(s.returned)/float64(n))
			sort.Slice(s.latencies, func(i, j int) bool { return s.latencies[i] < s.latencies[j] })
			fmt.Printf("latency    min %s  p50 %s  p90 %s  p99 %s  max %s\n",
				s.latencies[0], percentile(s.latencies, 50), percentile(s.latencies, 90),
				percentile(s.latencies, 99), s.latencies[n-1])
		}
		codes := make([]int, 0, len(s.codes))
		for c := range s.codes {
			codes = append(codes, c)
		}
		sort.Ints(codes)
		parts := make([]string, len(codes))
		for i, c := range codes {
			label := fmt.Sprint(c)
			if c == 0 {
				label = "transport"
			}
			parts[i] = fmt.Sprintf("%s=%d", label, s.codes[c])
		}
		fmt.Printf("statuses   %s\n\n", strings.Join(parts, " "))
	}
	return completed > 0
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
