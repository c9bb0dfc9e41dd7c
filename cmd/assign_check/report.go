package main

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"team-roles/internal/domain"
	"team-roles/internal/llm"
)

// greedyTotal elige para cada fila, en orden, el mejor rol libre. Sirve de linea base
// para medir cuanto mejora el matching optimo.
func greedyTotal(scores [][]float64) float64 {
	used := make(map[int]bool)
	total := 0.0
	for _, row := range scores {
		best := -1
		for j, v := range row {
			if used[j] {
				continue
			}
			if best == -1 || v > row[best] {
				best = j
			}
		}
		if best >= 0 {
			used[best] = true
			total += row[best]
		}
	}
	return total
}

var (
	rowsRe      = regexp.MustCompile(`exactly (\d+) rows`)
	colsRe      = regexp.MustCompile(`exactly (\d+) numbers`)
	applicantRe = regexp.MustCompile(`applicantId: (\S+)`)
	nameRe      = regexp.MustCompile(`(?m)^\s+Name: (.+)$`)
)

// newMockLLM responde de forma deterministica a los prompts de scoring y justificacion.
func newMockLLM() *llm.MockClient {
	return &llm.MockClient{
		Fn: func(ctx context.Context, req llm.CompletionRequest) (string, error) {
			if m := rowsRe.FindStringSubmatch(req.UserPrompt); m != nil {
				rows, _ := strconv.Atoi(m[1])
				cols := 0
				if c := colsRe.FindStringSubmatch(req.UserPrompt); c != nil {
					cols, _ = strconv.Atoi(c[1])
				}
				return mockMatrix(req.UserPrompt, rows, cols), nil
			}
			return mockJustifications(req.UserPrompt), nil
		},
	}
}

func mockMatrix(seed string, rows, cols int) string {
	scores := make([][]int, rows)
	for i := range scores {
		scores[i] = make([]int, cols)
		for j := range scores[i] {
			h := fnv.New32a()
			fmt.Fprintf(h, "%s|%d|%d", seed, i, j)
			scores[i][j] = int(h.Sum32() % 101)
		}
	}
	out, _ := json.Marshal(scores)
	return "```json\n" + string(out) + "\n```"
}

func mockJustifications(prompt string) string {
	ids := applicantRe.FindAllStringSubmatch(prompt, -1)
	names := nameRe.FindAllStringSubmatch(prompt, -1)
	type item struct {
		ApplicantID   string `json:"applicantId"`
		Justification string `json:"justification"`
	}
	items := make([]item, 0, len(ids))
	for i, m := range ids {
		key := m[1]
		// El ultimo participante se devuelve por nombre, como suelen hacer los modelos.
		if i == len(ids)-1 && i < len(names) {
			key = strings.TrimSpace(names[i][1])
		}
		items = append(items, item{
			ApplicantID:   key,
			Justification: "Your background and working style match what this role needs day to day.",
		})
	}
	out, _ := json.Marshal(items)
	return string(out)
}

// sortedStatuses ordena los estados para imprimir de forma estable.
func sortedStatuses(counts map[domain.AssignmentStatus]int) []domain.AssignmentStatus {
	out := make([]domain.AssignmentStatus, 0, len(counts))
	for s := range counts {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
