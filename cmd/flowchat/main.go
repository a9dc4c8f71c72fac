package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowchat-io/flowchat/dialog"
	"github.com/flowchat-io/flowchat/flow"
	"github.com/flowchat-io/flowchat/flow/actions"
	"github.com/flowchat-io/flowchat/internal/profile"
	"github.com/flowchat-io/flowchat/internal/version"
	"github.com/flowchat-io/flowchat/nlu"
	"github.com/flowchat-io/flowchat/plugin/channels"
	"github.com/flowchat-io/flowchat/plugin/channels/telegram"
	"github.com/flowchat-io/flowchat/server"
	"github.com/flowchat-io/flowchat/store"
	"github.com/flowchat-io/flowchat/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "flowchat",
	Short: `A flow-driven conversational dialogue manager. Configure intents, slots, and triggers in YAML; serve them over HTTP and chat channels.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Try to load .env file from current directory (ignore error if file doesn't exist)
		_ = godotenv.Load()
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		instanceProfile := newProfile()
		if err := instanceProfile.Validate(); err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			slog.Error("failed to create db driver", "error", err)
			return err
		}
		storeInstance := store.New(dbDriver)
		defer storeInstance.Close()
		if err := storeInstance.Migrate(ctx); err != nil {
			slog.Error("failed to migrate", "error", err)
			return err
		}

		service, flowMap, err := buildService(ctx, instanceProfile, storeInstance)
		if err != nil {
			slog.Error("failed to build dialog service", "error", err)
			return err
		}

		router := channels.NewRouter()
		defer router.Close()
		if instanceProfile.TelegramToken != "" {
			channel, err := telegram.NewChannel(&telegram.Config{BotToken: instanceProfile.TelegramToken}, channelHandler{service})
			if err != nil {
				slog.Error("failed to create telegram channel", "error", err)
				return err
			}
			router.Register(channel)
		}
		for _, channel := range router.Channels() {
			go func(ch channels.Channel) {
				if err := ch.Run(ctx); err != nil && ctx.Err() == nil {
					slog.Error("channel stopped", "channel", ch.Name(), "error", err)
				}
			}(channel)
		}

		s, err := server.NewServer(instanceProfile, service, storeInstance)
		if err != nil {
			slog.Error("failed to create server", "error", err)
			return err
		}

		printGreetings(instanceProfile, flowMap)
		return s.Start(ctx)
	},
}

func newProfile() *profile.Profile {
	p := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version.GetCurrentVersion(viper.GetString("mode")),
	}
	p.FromEnv()
	return p
}

// buildService wires the flow config, the NLU classifier, and the store into
// a dialog service.
func buildService(ctx context.Context, p *profile.Profile, storeInstance *store.Store) (*dialog.Service, *flow.FlowMap, error) {
	loader := flow.NewLoader("")
	flowMap, err := loader.LoadFlowMap(p.DomainPath, p.FlowPath)
	if err != nil {
		return nil, nil, err
	}
	domain := flowMap.Domain

	registry, err := actions.Builtin(domain, actions.DefaultIntentTitles())
	if err != nil {
		return nil, nil, err
	}

	var classifier nlu.Classifier
	if p.IsNLUEnabled() {
		classifier, err = nlu.NewOpenAIClassifier(nlu.OpenAIConfig{
			APIKey:  p.NLUAPIKey,
			BaseURL: p.NLUBaseURL,
			Model:   p.NLUModel,
			Timeout: time.Duration(p.NLUTimeout) * time.Second,
		}, domain)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("nlu: using remote classifier", "model", p.NLUModel)
	} else {
		rules, entityRules := nlu.DomainRules(domain)
		classifier = nlu.NewKeywordClassifier(rules, entityRules)
		slog.Info("nlu: using keyword classifier")
	}

	conversations, err := dialog.NewUserConversations(p.UserLimit, domain, storeInstance, p.Version)
	if err != nil {
		return nil, nil, err
	}
	if err := conversations.Warm(ctx); err != nil {
		// Warm-up is best effort; misses are filled lazily on first checkout.
		slog.Warn("failed to warm conversation working set", "error", err)
	}
	controller, err := dialog.NewController(flowMap, classifier, registry, p.Version)
	if err != nil {
		return nil, nil, err
	}
	service, err := dialog.NewService(controller, conversations, p.TurnLimit)
	if err != nil {
		return nil, nil, err
	}
	return service, flowMap, nil
}

// channelHandler adapts the dialog service to the channel handler interface.
type channelHandler struct {
	service *dialog.Service
}

func (h channelHandler) HandleMessage(ctx context.Context, userID, userName, message string) (string, []string, error) {
	out, err := h.service.HandleMessage(ctx, userID, userName, message)
	if err != nil {
		return "", nil, err
	}
	return out.Text, out.Button, nil
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("flowchat")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(p *profile.Profile, flowMap *flow.FlowMap) {
	fmt.Printf("FlowChat %s started successfully!\n", p.Version)
	if version.GitCommit != "unknown" {
		fmt.Printf("Build: %s (%s)\n", version.GitCommit, version.BuildTime)
	}

	if p.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if p.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", p.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", p.Data)
	fmt.Printf("Database driver: %s\n", p.Driver)
	fmt.Printf("Mode: %s\n", p.Mode)
	fmt.Printf("Configured intents: %s\n", strings.Join(flowMap.IntentNames(), ", "))
	if len(p.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", p.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", p.Addr, p.Port)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
