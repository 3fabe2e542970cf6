package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/estudolab/estudai/internal/agents/estudos"
	"github.com/estudolab/estudai/internal/config"
	"github.com/estudolab/estudai/internal/mcp"
	"github.com/estudolab/estudai/internal/providers"
	"github.com/estudolab/estudai/internal/state"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the study tools over MCP stdio",
		Long: "Exposes resumo, quiz, responder and progress lookup as MCP tools on " +
			"stdin/stdout for editors and agent hosts. Logs go to stderr.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP()
		},
	}
}

func runMCP() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := state.Open(cfg.State.ToOptions())
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	var provider providers.Provider
	if cfg.Provider.APIKey != "" {
		provider, err = providers.New(cfg.Provider.Name, cfg.Provider.Model, cfg.Provider.APIKey)
		if err != nil {
			return fmt.Errorf("build model provider: %w", err)
		}
	}
	agent := estudos.New(provider, store)

	srv := mcpserver.NewMCPServer("estudai", Version)

	srv.AddTool(
		mcpgo.NewTool("gerar_resumo",
			mcpgo.WithDescription("Gera um resumo de estudo em português sobre um tópico."),
			mcpgo.WithString("topico", mcpgo.Required(), mcpgo.Description("Tópico do resumo.")),
			mcpgo.WithString("usuario_id", mcpgo.Description("Identificador do estudante (opcional).")),
		),
		func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			topico, err := req.RequireString("topico")
			if err != nil {
				return mcpgo.NewToolResultError(err.Error()), nil
			}
			reply := agent.HandleCommand(ctx, "resumo",
				map[string]any{"topico": topico}, toolContext(req))
			return toolReply(reply), nil
		},
	)

	srv.AddTool(
		mcpgo.NewTool("gerar_quiz",
			mcpgo.WithDescription("Gera um quiz de múltipla escolha em português."),
			mcpgo.WithString("topico", mcpgo.Description("Tópico do quiz; vazio usa conhecimentos gerais.")),
			mcpgo.WithString("usuario_id", mcpgo.Description("Identificador do estudante (opcional).")),
		),
		func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			reply := agent.HandleCommand(ctx, "quiz",
				map[string]any{"topico": req.GetString("topico", "")}, toolContext(req))
			return toolReply(reply), nil
		},
	)

	srv.AddTool(
		mcpgo.NewTool("responder",
			mcpgo.WithDescription("Corrige as respostas do último quiz do estudante (ex: \"A B C\")."),
			mcpgo.WithString("respostas", mcpgo.Required(), mcpgo.Description("Letras das alternativas escolhidas.")),
			mcpgo.WithString("usuario_id", mcpgo.Required(), mcpgo.Description("Identificador do estudante.")),
		),
		func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			respostas, err := req.RequireString("respostas")
			if err != nil {
				return mcpgo.NewToolResultError(err.Error()), nil
			}
			reply := agent.HandleCommand(ctx, "responder",
				map[string]any{"respostas": respostas}, toolContext(req))
			return toolReply(reply), nil
		},
	)

	srv.AddTool(
		mcpgo.NewTool("recuperar_progresso",
			mcpgo.WithDescription("Recupera o progresso salvo de um estudante."),
			mcpgo.WithString("usuario_id", mcpgo.Required(), mcpgo.Description("Identificador do estudante.")),
		),
		func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			usuarioID, err := req.RequireString("usuario_id")
			if err != nil {
				return mcpgo.NewToolResultError(err.Error()), nil
			}
			progresso, err := state.Property(ctx, store, usuarioID, "progresso")
			if err != nil {
				return mcpgo.NewToolResultError(err.Error()), nil
			}
			if progresso == nil {
				progresso = map[string]any{}
			}
			return jsonResult(map[string]any{"progresso": progresso}), nil
		},
	)

	return mcpserver.ServeStdio(srv)
}

// toolContext carries the calling surface and the optional student id into
// the synthesized envelope.
func toolContext(req mcpgo.CallToolRequest) map[string]any {
	msgContext := map[string]any{"source": "mcp"}
	if uid := req.GetString("usuario_id", ""); uid != "" {
		msgContext["user_id"] = uid
	}
	return msgContext
}

// toolReply converts an agent reply into an MCP result: text data rides as
// plain text, structured data as indented JSON.
func toolReply(reply *mcp.Message) *mcpgo.CallToolResult {
	if !reply.IsSuccess() {
		if data, ok := reply.Data.(map[string]any); ok {
			if errText, ok := data["error"].(string); ok {
				return mcpgo.NewToolResultError(errText)
			}
		}
		return mcpgo.NewToolResultError("falha ao processar o comando")
	}
	if text, ok := reply.Data.(string); ok {
		return mcpgo.NewToolResultText(text)
	}
	return jsonResult(reply.Data)
}

func jsonResult(v any) *mcpgo.CallToolResult {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("resposta não serializável: %v", err))
	}
	return mcpgo.NewToolResultText(string(raw))
}
