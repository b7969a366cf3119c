// Command admission_probe fires concurrent registration attempts at a
// running API instance and tallies the decisions. It is a manual
// verification tool for the capacity guarantee: for a section with N
// free seats, exactly N of the attempts should be admitted no matter
// how many race.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

type attemptResult struct {
	Status int
	Reason string
	Err    error
}

type decisionBody struct {
	Data struct {
		Allowed bool   `json:"allowed"`
		Reason  string `json:"reason"`
	} `json:"data"`
}

func main() {
	var (
		baseURL     string
		token       string
		sectionID   string
		studentsCSV string
		concurrency int
		timeout     time.Duration
	)

	flag.StringVar(&baseURL, "base", "http://localhost:8080/api/v1", "API base URL")
	flag.StringVar(&token, "token", "", "Bearer token with registration:create access")
	flag.StringVar(&sectionID, "section", "", "Target section ID")
	flag.StringVar(&studentsCSV, "students", "", "Comma-separated student IDs, one attempt each")
	flag.IntVar(&concurrency, "concurrency", 8, "Number of attempts fired at once")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	if sectionID == "" || token == "" {
		flag.Usage()
		os.Exit(2)
	}

	students := splitNonEmpty(studentsCSV)
	if len(students) == 0 {
		log.Fatal("at least one student ID is required")
	}

	client := &http.Client{Timeout: timeout}
	sem := make(chan struct{}, concurrency)
	results := make([]attemptResult, len(students))

	var wg sync.WaitGroup
	for i, studentID := range students {
		wg.Add(1)
		go func(i int, studentID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = attempt(client, baseURL, token, sectionID, studentID)
		}(i, studentID)
	}
	wg.Wait()

	admitted := 0
	reasons := map[string]int{}
	for i, res := range results {
		if res.Err != nil {
			fmt.Printf("%-12s error: %v\n", students[i], res.Err)
			reasons["ERROR"]++
			continue
		}
		fmt.Printf("%-12s %d %s\n", students[i], res.Status, res.Reason)
		reasons[res.Reason]++
		if res.Status == http.StatusCreated {
			admitted++
		}
	}

	fmt.Printf("\nadmitted=%d of %d\n", admitted, len(students))
	for reason, n := range reasons {
		fmt.Printf("  %-24s %d\n", reason, n)
	}
}

func attempt(client *http.Client, baseURL, token, sectionID, studentID string) attemptResult {
	payload, _ := json.Marshal(map[string]string{
		"section_id": sectionID,
		"student_id": studentID,
	})
	req, err := http.NewRequest(http.MethodPost, baseURL+"/registrations", bytes.NewReader(payload))
	if err != nil {
		return attemptResult{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return attemptResult{Err: err}
	}
	defer resp.Body.Close()

	var body decisionBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return attemptResult{Status: resp.StatusCode, Reason: "UNPARSEABLE"}
	}
	return attemptResult{Status: resp.StatusCode, Reason: body.Data.Reason}
}

func splitNonEmpty(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
