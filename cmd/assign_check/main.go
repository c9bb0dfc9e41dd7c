package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"team-roles/internal/config"
	"team-roles/internal/domain"
	"team-roles/internal/llm"
	"team-roles/internal/service"
)

const (
	colorGreen  = "\033[32m"
	colorCyan   = "\033[36m"
	colorYellow = "\033[33m"
	colorReset  = "\033[0m"
)

func main() {
	useMock := flag.Bool("mock", false, "use a deterministic fake LLM instead of the configured provider")
	copies := flag.Int("copies", 1, "how many times to replicate the sample teams (stresses the queue)")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline for the run")
	verbose := flag.Bool("v", false, "log pipeline events")
	flag.Parse()

	_ = godotenv.Load()

	logger := zap.NewNop()
	if *verbose {
		logger, _ = zap.NewDevelopment()
	}

	pipelineCfg, err := config.LoadPipeline("")
	if err != nil {
		log.Fatal(err)
	}

	var llmClient llm.LLMClient
	if *useMock {
		llmClient = newMockLLM()
	} else {
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatal(err)
		}
		pipelineCfg, err = config.LoadPipeline(cfg.PipelineConfig)
		if err != nil {
			log.Fatal(err)
		}
		llmClient = llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout, logger)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	roles := domain.DefaultRoleCatalog()
	teams := sampleTeams(*copies)
	teamRepo := newMemoryTeamRepo(teams)
	sessionRepo := newMemorySessionRepo()

	scorer := service.NewScorer(llmClient, service.ScorerConfigFrom(pipelineCfg.Scorer), logger, nil)
	assigner := service.NewAssigner(logger)
	justifier := service.NewJustifier(llmClient, service.JustifierConfigFrom(pipelineCfg.Justifier), logger, nil)
	processor := service.NewProcessor(teamRepo, sessionRepo, scorer, assigner, justifier, roles,
		pipelineCfg.Justifier.Timeout, logger, nil)
	queue := service.NewAssignmentQueue(processor, service.QueueConfigFrom(pipelineCfg.Queue), logger)

	start := time.Now()
	for _, t := range teams {
		queue.Enqueue(t.ID)
	}
	fmt.Printf("%s[queue]%s %d teams enqueued, max concurrent %d\n", colorCyan, colorReset, len(teams), pipelineCfg.Queue.MaxConcurrent)

	if err := waitForCompletion(ctx, sessionRepo, queue, len(teams)); err != nil {
		log.Printf("warning: %v", err)
	}
	_ = queue.Stop(ctx)
	_ = processor.WaitBackground(ctx)

	var optimal, greedy float64
	for _, t := range teams {
		view, err := processor.GetAssignment(ctx, t.ID)
		if err != nil {
			fmt.Printf("%s[%s]%s no assignment: %v\n\n", colorYellow, t.ID, colorReset, err)
			continue
		}
		printTeam(t, view)
		if view.Session.Assignment != nil && view.Session.ScoreMatrix != nil {
			optimal += view.Session.Assignment.TotalScore
			greedy += greedyTotal(view.Session.ScoreMatrix.Scores)
		}
	}

	counts, _ := sessionRepo.CountByStatus(ctx)
	status := queue.Status()
	fmt.Println("==== Resumen ====")
	for _, s := range sortedStatuses(counts) {
		fmt.Printf("%-11s %d\n", s, counts[s])
	}
	fmt.Printf("queue: %d ok, %d failed runs, %d permanently failed\n", status.Succeeded, status.Failed, len(status.PermanentlyFailed))
	fmt.Printf("total score: optimo %.0f | greedy %.0f\n", optimal, greedy)
	fmt.Printf("elapsed: %s\n", time.Since(start).Round(time.Millisecond))
}

func waitForCompletion(ctx context.Context, sessions *memorySessionRepo, queue *service.AssignmentQueue, total int) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		counts, _ := sessions.CountByStatus(ctx)
		st := queue.Status()
		settled := counts[domain.StatusComplete] + len(st.PermanentlyFailed)
		if settled >= total {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("run deadline reached with %d/%d teams settled", settled, total)
		case <-ticker.C:
		}
	}
}

func printTeam(team domain.Team, view service.AssignmentView) {
	fmt.Printf("%s[%s]%s status=%s\n", colorCyan, team.ID, colorReset, view.Session.Status)
	for _, d := range view.Details {
		fmt.Printf("  %s%-16s%s -> %-18s %3.0f\n", colorGreen, d.ApplicantName, colorReset, d.RoleName, d.Score)
		if d.Justification != "" {
			fmt.Printf("      %q\n", d.Justification)
		}
	}
	if view.Stats != nil {
		fmt.Printf("  total %.0f | avg %.1f | min %.0f | max %.0f\n", view.Stats.TotalScore, view.Stats.AverageScore, view.Stats.MinScore, view.Stats.MaxScore)
	}
	fmt.Println()
}

func sampleTeams(copies int) []domain.Team {
	if copies < 1 {
		copies = 1
	}
	base := []domain.Team{
		{
			ID: "team-alpha", SessionID: "session-demo", MaxMembers: 4, IsComplete: true,
			Members: []domain.Applicant{
				{ID: "a1", Name: "Lucia Fernandez", Occupation: "Product manager", YearsOfExperience: 6, ExperienceUnit: domain.ExperienceUnitYears, Skills: []string{"roadmapping", "stakeholder mgmt"}, PersonalityTraits: []string{"decisive", "calm under pressure"}},
				{ID: "a2", Name: "Tomas Ruiz", Occupation: "Backend developer", YearsOfExperience: 3, ExperienceUnit: domain.ExperienceUnitYears, Skills: []string{"go", "postgres", "apis"}, PersonalityTraits: []string{"pragmatic", "focused"}},
				{ID: "a3", Name: "Mara Costa", Occupation: "UX researcher", YearsOfExperience: 18, ExperienceUnit: domain.ExperienceUnitMonths, Skills: []string{"interviews", "prototyping"}, PersonalityTraits: []string{"curious", "empathetic"}},
				{ID: "a4", Name: "Diego Sosa", Occupation: "Data analyst", YearsOfExperience: 4, ExperienceUnit: domain.ExperienceUnitYears, Skills: []string{"sql", "dashboards"}, PersonalityTraits: []string{"methodical"}},
			},
		},
		{
			ID: "team-beta", SessionID: "session-demo", MaxMembers: 3, IsComplete: true,
			Members: []domain.Applicant{
				{ID: "b1", Name: "Ana Gil", Occupation: "Marketing lead", YearsOfExperience: 8, ExperienceUnit: domain.ExperienceUnitYears, Skills: []string{"copywriting", "public speaking"}, PersonalityTraits: []string{"outgoing", "persuasive"}},
				{ID: "b2", Name: "Pablo Vidal", Occupation: "QA engineer", YearsOfExperience: 5, ExperienceUnit: domain.ExperienceUnitYears, Skills: []string{"test plans", "automation"}, PersonalityTraits: []string{"detail oriented", "skeptical"}},
				{ID: "b3", Name: "Sofia Luna", Occupation: "Industrial designer", YearsOfExperience: 2, ExperienceUnit: domain.ExperienceUnitYears, Skills: []string{"sketching", "3d modeling"}, PersonalityTraits: []string{"imaginative", "playful"}},
			},
		},
	}

	teams := make([]domain.Team, 0, len(base)*copies)
	for c := 0; c < copies; c++ {
		for _, t := range base {
			clone := t
			if c > 0 {
				clone.ID = fmt.Sprintf("%s-%d", t.ID, c)
			}
			clone.Members = append([]domain.Applicant(nil), t.Members...)
			teams = append(teams, clone)
		}
	}
	return teams
}
