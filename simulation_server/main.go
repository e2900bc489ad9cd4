package main

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fvdveen/simulacra/simulation_server/config"
	"github.com/fvdveen/simulacra/simulation_server/console"
	"github.com/fvdveen/simulacra/simulation_server/llm/openai"
	"github.com/fvdveen/simulacra/simulation_server/logging"
	"github.com/fvdveen/simulacra/simulation_server/memory"
	simulationloader "github.com/fvdveen/simulacra/simulation_server/simulation_loader"
	"github.com/fvdveen/simulacra/simulation_server/server"
)

var (
	flagConfig string
	flagFork   string
	flagSim    string
)

var rootCmd = &cobra.Command{
	Use:          "simulacra",
	Short:        "Tick driven simulation server for generative agent personas",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runConsole,
}

var runCmd = &cobra.Command{
	Use:   "run <steps>",
	Short: "Advance a simulation a number of steps without an operator, then save it",
	Args:  cobra.ExactArgs(1),
	RunE:  runHeadless,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "config.yaml", "path to the config file")
	rootCmd.PersistentFlags().StringVar(&flagFork, "fork", "", "simulation to fork from")
	rootCmd.PersistentFlags().StringVar(&flagSim, "sim", "", "simulation code to create or resume")
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runConsole(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}

	stdin := bufio.NewReader(os.Stdin)

	fork, sim := flagFork, flagSim
	if fork == "" && sim == "" {
		if fork, err = readLine(stdin, "Enter the name of the forked simulation: "); err != nil {
			return err
		}
		if sim, err = readLine(stdin, "Enter the name of the new simulation: "); err != nil {
			return err
		}
	}

	simCode, err := bootstrapSimulationCode(conf, fork, sim)
	if err != nil {
		return err
	}

	rl, err := newRunLogs(conf, simCode)
	if err != nil {
		return err
	}
	defer func() { _ = rl.Close() }()
	defer logging.RecoverAndLog(rl.Log, rl.Sync)

	srv, err := loadServer(conf, simCode, rl)
	if err != nil {
		return err
	}

	return console.New(srv, rl.Log, stdin, os.Stdout).Run()
}

func runHeadless(cmd *cobra.Command, args []string) error {
	steps, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("could not parse step count: %w", err)
	}

	conf, err := loadConfig()
	if err != nil {
		return err
	}

	simCode, err := bootstrapSimulationCode(conf, flagFork, flagSim)
	if err != nil {
		return err
	}

	rl, err := newRunLogs(conf, simCode)
	if err != nil {
		return err
	}
	defer func() { _ = rl.Close() }()
	defer logging.RecoverAndLog(rl.Log, rl.Sync)

	srv, err := loadServer(conf, simCode, rl)
	if err != nil {
		return err
	}
	srv.Headless = true

	if err := srv.Run(steps); err != nil {
		return fmt.Errorf("could not run simulation: %w", err)
	}

	return srv.Save()
}

func loadConfig() (config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return config.Config{}, fmt.Errorf("could not load .env file: %w", err)
	}

	return config.Load(flagConfig)
}

// bootstrapSimulationCode forks a new simulation when an origin is given,
// otherwise resumes the named simulation in place.
func bootstrapSimulationCode(conf config.Config, fork, sim string) (string, error) {
	if fork == "" && sim == "" {
		return "", fmt.Errorf("a simulation to fork or resume is required")
	}
	if fork == "" {
		return sim, nil
	}

	return simulationloader.Fork(conf.SimulationDir, fork, sim)
}

func newRunLogs(conf config.Config, simCode string) (*logging.RunLogs, error) {
	rl, err := logging.NewRunLogs(logging.Config{
		BaseDir:        path.Join(conf.LogDir, simCode),
		AlsoToStderr:   true,
		EnableDebugLog: conf.DebugLog,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create logger: %w", err)
	}

	return rl, nil
}

func loadServer(conf config.Config, simCode string, rl *logging.RunLogs) (*server.Server, error) {
	clientOpts := []openai.ClientOpt{openai.WithAPIKey(conf.TextModelKey), openai.WithLogger(rl.Log)}
	if conf.TextModelURL != "" {
		clientOpts = append(clientOpts, openai.WithURL(conf.TextModelURL))
	}
	if conf.TextModel != "" {
		clientOpts = append(clientOpts, openai.WithTextModel(conf.TextModel))
	}
	client := openai.New(clientOpts...)

	embedderOpts := []openai.ClientOpt{openai.WithAPIKey(conf.EmbeddingKey), openai.WithLogger(rl.Log)}
	if conf.EmbeddingURL != "" {
		embedderOpts = append(embedderOpts, openai.WithURL(conf.EmbeddingURL))
	}
	if conf.EmbeddingModel != "" {
		embedderOpts = append(embedderOpts, openai.WithEmbeddingsModel(conf.EmbeddingModel))
	}
	embedder := openai.New(embedderOpts...)

	srv, err := simulationloader.LoadSimulation(path.Join(conf.SimulationDir, simCode), conf.MazeDir, embedder, client, rl.Log)
	if err != nil {
		return nil, fmt.Errorf("could not load simulation: %w", err)
	}

	srv.Storage = &simulationloader.FileStorage{
		SimulationsFolder: conf.SimulationDir,
		BackupFolder:      conf.BackupDir,
		Simulation:        simCode,
		Maze:              srv.Maze.Folder(),
	}

	srv.ServerSleep = time.Duration(conf.ServerSleep)
	srv.Headless = conf.Headless
	srv.SkipSleep = conf.SkipSleep
	srv.FallbackAddress = memory.ParseAddress(conf.FallbackAddress)
	if srv.BackupInterval == 0 {
		srv.BackupInterval = conf.BackupInterval
	}

	if err := simulationloader.WriteTempoFiles(conf.TempDir, simCode, srv.Step); err != nil {
		return nil, err
	}

	return srv, nil
}

func readLine(r *bufio.Reader, prompt string) (string, error) {
	fmt.Print(prompt)

	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}

	return strings.TrimSpace(line), nil
}
