package chat

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/smallnest/goskills"
	mcpclient "github.com/smallnest/goskills/mcp"
	adaptergoskills "github.com/via-canvas/intelligence-core/adapter/goskills"
	"github.com/via-canvas/intelligence-core/adapter/mcp"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/tools"

	sessionpkg "github.com/via-canvas/intelligence-core/showcases/chat/pkg/session"
)

// Config holds application configuration
type Config struct {
	ChatTitle      string
	AppLogo        string
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string
	EnableFeedback bool
}

// getEnvOrDefault returns environment variable or default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getConfig returns application configuration
func GetConfig() Config {
	return Config{
		ChatTitle:      getEnvOrDefault("CHAT_TITLE", "LangGraphGo 聊天"),
		AppLogo:        getEnvOrDefault("APP_LOGO", "https://github.com/smallnest/lango-website/blob/master/images/logo/lango5.png?raw=true"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:  os.Getenv("OPENAI_BASE_URL"),
		EnableFeedback: getEnvOrDefault("ENABLE_FEEDBACK", "true") == "true",
	}
}

// SkillInfo stores basic info about a skill
type SkillInfo struct {
	Name        string
	Description string
	Package     *goskills.SkillPackage
	Tools       []tools.Tool // Cached tools for the skill
	Loaded      bool         // Whether tools have been loaded
}

// ChatAgent interface defines the contract for chat agents
type ChatAgent interface {
	Chat(ctx context.Context, message string, enableSkills bool, enableMCP bool) (string, error)
}

// SimpleChatAgent manages conversation history for a session
type SimpleChatAgent struct {
	llm           llms.Model
	messages      []llms.MessageContent
	mu            sync.RWMutex
	mcpClient     *mcpclient.Client
	mcpTools      []tools.Tool
	skills        []SkillInfo
	selectedSkill string // Currently selected skill name
	toolsEnabled  bool
	toolsLoading  bool // true when tools are being loaded asynchronously
	toolsLoaded   bool // true when tools have finished loading
}

// NewSimpleChatAgent creates a simple chat agent
func NewSimpleChatAgent(llm llms.Model, config Config) *SimpleChatAgent {
	// Add system message
	systemMsg := llms.MessageContent{
		Role:  llms.ChatMessageTypeSystem,
		Parts: []llms.ContentPart{llms.TextPart("You are a helpful AI assistant. Be concise and friendly.")},
	}

	agent := &SimpleChatAgent{
		llm:      llm,
		messages: []llms.MessageContent{systemMsg},
	}

	return agent
}

// InitializeToolsAsync asynchronously loads Skills and MCP tools in the background
// This prevents blocking server startup while tools are being loaded
func (a *SimpleChatAgent) InitializeToolsAsync() {
	// Mark as loading
	a.mu.Lock()
	a.toolsLoading = true
	a.toolsLoaded = false
	a.mu.Unlock()

	go func() {
		log.Println("Starting background tools initialization...")

		// Load Skills
		skillsDir := os.Getenv("SKILLS_DIR")
		if skillsDir == "" {
			skillsDir = "../../testdata/skills"
		}

		if _, err := os.Stat(skillsDir); err == nil {
			packages, err := goskills.ParseSkillPackages(skillsDir)
			if err != nil {
				log.Printf("Failed to parse skills packages: %v", err)
			} else {
				a.mu.Lock()
				for _, skill := range packages {
					// Store skill info without converting to tools yet
					a.skills = append(a.skills, SkillInfo{
						Name:        skill.Meta.Name,
						Description: skill.Meta.Description,
						Package:     skill,
						Loaded:      false,
					})
				}
				a.toolsEnabled = true
				a.mu.Unlock()
				log.Printf("Loaded %d skills info", len(packages))

				// Pre-warm: Load tools for all skills
				log.Println("Pre-loading tools for all skills...")
				for i := range a.skills {
					skillName := a.skills[i].Name
					if _, err := a.loadSkillTools(skillName); err != nil {
						log.Printf("Failed to pre-load tools for skill '%s': %v", skillName, err)
					}
				}
				log.Printf("Pre-loaded tools for %d skills", len(a.skills))
			}
		} else {
			log.Printf("Skills directory not found at %s", skillsDir)
		}

		// Load MCP
		mcpConfigPath := os.Getenv("MCP_CONFIG_PATH")
		if mcpConfigPath == "" {
			mcpConfigPath = "../../testdata/mcp/mcp.json"
		}

		// Safely initialize MCP with error recovery
		if err := a.initializeMCP(mcpConfigPath); err != nil {
			log.Printf("MCP initialization failed (continuing without MCP): %v", err)
		}

		// Mark as loaded
		a.mu.Lock()
		a.toolsLoading = false
		a.toolsLoaded = true
		skillsCount := len(a.skills)
		mcpToolsCount := len(a.mcpTools)
		a.mu.Unlock()

		log.Printf("✓ Tools pre-warming complete: %d Skills, %d MCP tools loaded", skillsCount, mcpToolsCount)
	}()
}

// initializeMCP safely initializes MCP client with error recovery
func (a *SimpleChatAgent) initializeMCP(mcpConfigPath string) (err error) {
	// Add panic recovery to prevent crashes from MCP initialization
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during MCP initialization: %v", r)
			log.Printf("Recovered from MCP initialization panic: %v", r)
		}
	}()

	// Use a longer timeout for initialization as npx downloads may be slow
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Load MCP config
	config, err := mcpclient.LoadConfig(mcpConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load MCP config: %w", err)
	}

	// Create MCP client with error handling
	client, err := mcpclient.NewClient(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create MCP client: %w", err)
	}

	// Get tools from MCP with timeout
	toolsCtx, toolsCancel := context.WithTimeout(ctx, 30*time.Second)
	defer toolsCancel()

	tools, err := mcp.MCPToTools(toolsCtx, client)
	if err != nil {
		// Close client if tool loading fails
		if closeErr := a.closeMCPClient(client); closeErr != nil {
			log.Printf("Failed to close MCP client after error: %v", closeErr)
		}
		return fmt.Errorf("failed to get MCP tools: %w", err)
	}

	if len(tools) == 0 {
		log.Printf("No MCP tools found, closing client")
		if closeErr := a.closeMCPClient(client); closeErr != nil {
			log.Printf("Failed to close MCP client: %v", closeErr)
		}
		return nil
	}

	// Successfully initialized
	a.mu.Lock()
	a.mcpClient = client
	a.mcpTools = tools
	a.toolsEnabled = true
	a.mu.Unlock()
	log.Printf("Successfully loaded %d MCP tools", len(tools))

	return nil
}

// closeMCPClient safely closes an MCP client with panic recovery and timeout
func (a *SimpleChatAgent) closeMCPClient(client *mcpclient.Client) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during MCP client close: %v", r)
			log.Printf("Recovered from MCP client close panic: %v", r)
		}
	}()

	if client == nil {
		return nil
	}

	// Use a goroutine with timeout to prevent hanging on close
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in close goroutine: %v", r)
			}
		}()
		done <- client.Close()
	}()

	// Wait for close with timeout
	select {
	case closeErr := <-done:
		if closeErr != nil {
			return fmt.Errorf("failed to close MCP client: %w", closeErr)
		}
		return nil
	case <-time.After(5 * time.Second):
		log.Printf("Warning: MCP client close timed out after 5 seconds")
		return fmt.Errorf("MCP client close timed out")
	}
}

// Close releases resources held by the agent
func (a *SimpleChatAgent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	log.Printf("Closing agent and cleaning up resources...")

	if a.mcpClient != nil {
		log.Printf("Closing MCP client...")
		if err := a.closeMCPClient(a.mcpClient); err != nil {
			// Log error but don't return - we want to continue cleanup
			log.Printf("Error closing MCP client (continuing cleanup): %v", err)
		}
		a.mcpClient = nil
		a.mcpTools = nil
		log.Printf("MCP client closed and cleared")
	}

	return nil
}

// getToolsInfo returns a formatted string of available tools
func (a *SimpleChatAgent) getToolsInfo() string {
	if len(a.mcpTools) == 0 {
		return "No tools available."
	}

	var info strings.Builder
	for _, tool := range a.mcpTools {
		info.WriteString(fmt.Sprintf("- %s: %s\n", tool.Name(), tool.Description()))
	}
	return info.String()
}

// GetAvailableTools returns the list of available skills and MCP tools
func (a *SimpleChatAgent) GetAvailableTools() []map[string]string {
	var tools []map[string]string

	// Add MCP tools
	for _, tool := range a.mcpTools {
		tools = append(tools, map[string]string{
			"name":        tool.Name(),
			"description": tool.Description(),
			"type":        "mcp",
		})
	}

	// Add skills (not loaded as tools yet)
	for _, skill := range a.skills {
		tools = append(tools, map[string]string{
			"name":        skill.Name,
			"description": skill.Description,
			"type":        "skill",
		})
	}

	return tools
}

// Chat sends a message and returns response
func (a *SimpleChatAgent) Chat(ctx context.Context, message string, enableSkills bool, enableMCP bool) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Add user message
	userMsg := llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(message)},
	}
	a.messages = append(a.messages, userMsg)

	toolUsed := false
	var toolResult string
	var toolName string

	if a.toolsEnabled {
		// Stage 1: Select skill if needed (only if user enables Skills)
		if enableSkills && len(a.skills) > 0 {
			selectedSkill, err := a.selectSkillForTask(ctx, message)
			if err != nil {
				log.Printf("Skill selection error: %v", err)
			} else if selectedSkill != "" {
				// Load tools for the selected skill
				skillTools, err := a.loadSkillTools(selectedSkill)
				if err != nil {
					log.Printf("Failed to load skill tools: %v", err)
				} else {
					a.selectedSkill = selectedSkill

					// Stage 2: Select specific tool from the skill
					tool, args, err := a.selectToolForTask(ctx, message, skillTools)
					if err != nil {
						log.Printf("Tool selection error: %v", err)
					} else if tool != nil {
						// Convert args to JSON string
						argsJSON, _ := json.Marshal(args)
						argsStr := string(argsJSON)
						if argsStr == "null" {
							argsStr = "{}"
						}

						// Call the tool
						result, err := (*tool).Call(ctx, argsStr)
						if err != nil {
							log.Printf("Tool %s call failed: %v", (*tool).Name(), err)
						} else {
							toolUsed = true
							toolResult = result
							toolName = (*tool).Name()
							log.Printf("Successfully used tool '%s' from skill '%s'", (*tool).Name(), selectedSkill)
						}
					}
				}
			}
		}

		// If no skill was selected, try MCP tools (only if user enables MCP)
		if !toolUsed && enableMCP && len(a.mcpTools) > 0 {
			tool, args, err := a.selectToolForTask(ctx, message, a.mcpTools)
			if err != nil {
				log.Printf("MCP tool selection error: %v", err)
			} else if tool != nil {
				// Convert args to JSON string
				argsJSON, _ := json.Marshal(args)
				argsStr := string(argsJSON)
				if argsStr == "null" {
					argsStr = "{}"
				}

				// Call the tool
				result, err := (*tool).Call(ctx, argsStr)
				if err != nil {
					log.Printf("MCP tool %s call failed: %v", (*tool).Name(), err)
				} else {
					toolUsed = true
					toolResult = result
					toolName = (*tool).Name()
					log.Printf("Successfully used MCP tool '%s'", (*tool).Name())
				}
			}
		}
	}

	// Add tool result to conversation if a tool was used
	if toolUsed && toolResult != "" {
		toolMsg := llms.MessageContent{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(fmt.Sprintf("I used the '%s' tool to help with your request. Here's the result:\n\n%s", toolName, toolResult)),
			},
		}
		a.messages = append(a.messages, toolMsg)
	}

	// Call LLM with full history
	response, err := a.llm.GenerateContent(ctx, a.messages)
	if err != nil {
		return "", fmt.Errorf("LLM call failed: %w", err)
	}

	// Extract response text
	var responseText string
	if response != nil && len(response.Choices) > 0 {
		responseText = response.Choices[0].Content
	}

	// Add assistant response to history
	assistantMsg := llms.MessageContent{
		Role:  llms.ChatMessageTypeAI,
		Parts: []llms.ContentPart{llms.TextPart(responseText)},
	}
	a.messages = append(a.messages, assistantMsg)

	return responseText, nil
}

// getClientID generates a unique client ID based on IP and User-Agent
func getClientID(r *http.Request) string {
	// Get client IP
	clientIP := r.Header.Get("X-Forwarded-For")
	if clientIP == "" {
		clientIP = r.Header.Get("X-Real-IP")
	}
	if clientIP == "" {
		clientIP = strings.Split(r.RemoteAddr, ":")[0]
	}

	// Get User-Agent
	userAgent := r.Header.Get("User-Agent")
	if userAgent == "" {
		userAgent = "unknown"
	}

	// Create unique hash from IP + User-Agent
	h := md5.New()
	h.Write([]byte(clientIP + userAgent + "chat-salt"))
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

// ChatServer manages HTTP endpoints and chat agents
type ChatServer struct {
	sessionManager  *sessionpkg.SessionManager
	agents          map[string]ChatAgent
	llm             llms.Model
	agentMu         sync.RWMutex
	port            string
	config          Config
	sessionManagers map[string]*sessionpkg.SessionManager // clientID -> SessionManager
	smMu            sync.RWMutex
}

// NewChatServer creates a new chat server
func NewChatServer(sessionDir string, maxHistory int, port string) (*ChatServer, error) {
	// Get configuration
	config := GetConfig()

	// Check API key
	if config.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	// Create OpenAI LLM (works with OpenAI-compatible APIs like Baidu)
	var llm llms.Model
	var err error

	if config.OpenAIBaseURL != "" {
		llm, err = openai.New(
			openai.WithModel(config.OpenAIModel),
			openai.WithToken(config.OpenAIAPIKey),
			openai.WithBaseURL(config.OpenAIBaseURL),
		)
	} else {
		llm, err = openai.New(
			openai.WithModel(config.OpenAIModel),
			openai.WithToken(config.OpenAIAPIKey),
		)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create LLM: %w", err)
	}

	return &ChatServer{
		sessionManager:  sessionpkg.NewSessionManager(sessionDir, maxHistory),
		agents:          make(map[string]ChatAgent),
		llm:             llm,
		port:            port,
		config:          config,
		sessionManagers: make(map[string]*sessionpkg.SessionManager),
	}, nil
}

// getSessionManager gets or creates a SessionManager for a specific client
func (cs *ChatServer) GetSessionManager(clientID string) *sessionpkg.SessionManager {
	cs.smMu.Lock()
	defer cs.smMu.Unlock()

	sm, exists := cs.sessionManagers[clientID]
	if !exists {
		clientSessionDir := fmt.Sprintf("%s/clients/%s", cs.sessionManager.GetSessionDir(), clientID)
		sm = sessionpkg.NewSessionManager(clientSessionDir, cs.sessionManager.GetMaxHistory())
		cs.sessionManagers[clientID] = sm
	}
	return sm
}

// getOrCreateAgent gets an existing agent or creates a new one for a session
func (cs *ChatServer) GetOrCreateAgent(sessionID string) (ChatAgent, error) {
	cs.agentMu.RLock()
	agent, exists := cs.agents[sessionID]
	cs.agentMu.RUnlock()

	if exists {
		return agent, nil
	}

	// Create new agent
	cs.agentMu.Lock()
	defer cs.agentMu.Unlock()

	// Double-check after acquiring write lock
	if agent, exists := cs.agents[sessionID]; exists {
		return agent, nil
	}

	// Try to reuse the warmup agent if available
	if warmupAgent, exists := cs.agents["__warmup__"]; exists {
		log.Printf("Reusing pre-warmed agent for session %s", sessionID)
		delete(cs.agents, "__warmup__")
		cs.agents[sessionID] = warmupAgent
		return warmupAgent, nil
	}

	// Create simple chat agent
	agent = NewSimpleChatAgent(cs.llm, cs.config)
	cs.agents[sessionID] = agent

	// Initialize tools asynchronously to avoid blocking
	agent.(*SimpleChatAgent).InitializeToolsAsync()

	return agent, nil
}

// GetWarmupAgent returns the warmup agent for reuse
func (cs *ChatServer) GetWarmupAgent() *SimpleChatAgent {
	cs.agentMu.Lock()
	defer cs.agentMu.Unlock()

	if warmupAgent, exists := cs.agents["__warmup__"]; exists {
		return warmupAgent.(*SimpleChatAgent)
	}
	return nil
}

// SetWarmupAgent stores a warmup agent for reuse
func (cs *ChatServer) SetWarmupAgent(agent *SimpleChatAgent) {
	cs.agentMu.Lock()
	defer cs.agentMu.Unlock()
	cs.agents["__warmup__"] = agent
}

// GetLLM returns the LLM instance
func (cs *ChatServer) GetLLM() llms.Model {
	return cs.llm
}

// GetConfig returns the server config
func (cs *ChatServer) GetConfig() Config {
	return cs.config
}

// HandleIndex serves the main HTML page
func (cs *ChatServer) HandleIndex(w http.ResponseWriter, r *http.Request, staticFS fs.FS) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	// Read index.html from embedded filesystem
	data, err := fs.ReadFile(staticFS, "static/index.html")
	if err != nil {
		http.Error(w, "Failed to load page", http.StatusInternalServerError)
		log.Printf("Failed to read index.html: %v", err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleNewSession creates a new chat session
func (cs *ChatServer) HandleNewSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientID := getClientID(r)
	sm := cs.GetSessionManager(clientID)
	session := sm.CreateSession()

	// Set client ID cookie
	http.SetCookie(w, &http.Cookie{
		Name:     "client_id",
		Value:    clientID,
		Path:     "/",
		MaxAge:   86400 * 30, // 30 days
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"session_id": session.ID,
		"client_id":  clientID,
	})
}

// HandleListSessions returns all active sessions for the client
func (cs *ChatServer) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientID := getClientID(r)
	sm := cs.GetSessionManager(clientID)
	sessions := sm.ListSessions()

	type SessionInfo struct {
		ID           string    `json:"id"`
		Title        string    `json:"title"`
		MessageCount int       `json:"message_count"`
		CreatedAt    time.Time `json:"created_at"`
		UpdatedAt    time.Time `json:"updated_at"`
	}

	sessionInfos := make([]SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		// Get the first user message as title
		title := "新会话"
		for _, msg := range session.Messages {
			if msg.Role == "user" {
				// Convert string to rune slice to properly handle UTF-8 characters
				runes := []rune(msg.Content)
				if len(runes) > 20 {
					title = string(runes[:20]) + "..."
				} else {
					title = msg.Content
				}
				break
			}
		}

		sessionInfos = append(sessionInfos, SessionInfo{
			ID:           session.ID,
			Title:        title,
			MessageCount: len(session.Messages),
			CreatedAt:    session.CreatedAt,
			UpdatedAt:    session.UpdatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessionInfos)
}

// HandleDeleteSession deletes a session
func (cs *ChatServer) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientID := getClientID(r)
	sm := cs.GetSessionManager(clientID)

	sessionID := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if sessionID == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	// Close and delete agent
	cs.agentMu.Lock()
	if agent, exists := cs.agents[sessionID]; exists {
		// Close agent if it implements Close method
		log.Printf("Closing agent for deleted session %s", sessionID)
		if simpleAgent, ok := agent.(*SimpleChatAgent); ok {
			// Use a goroutine with timeout to prevent blocking
			done := make(chan error, 1)
			go func() {
				done <- simpleAgent.Close()
			}()

			// Wait for close with timeout
			select {
			case err := <-done:
				if err != nil {
					log.Printf("Error closing agent for session %s: %v", sessionID, err)
				}
			case <-time.After(10 * time.Second):
				log.Printf("Warning: Agent close for session %s timed out", sessionID)
			}
		}
		delete(cs.agents, sessionID)
		log.Printf("Agent for session %s deleted", sessionID)
	}
	cs.agentMu.Unlock()

	// Delete session
	err := sm.DeleteSession(sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleGetHistory retrieves chat history for a session
func (cs *ChatServer) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientID := getClientID(r)
	sm := cs.GetSessionManager(clientID)

	sessionID := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	sessionID = strings.TrimSuffix(sessionID, "/history")
	if sessionID == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	messages, err := sm.GetMessages(sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}

// HandleChat handles chat message requests
func (cs *ChatServer) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		SessionID    string `json:"session_id"`
		Message      string `json:"message"`
		UserSettings struct {
			EnableSkills bool `json:"enable_skills"`
			EnableMCP    bool `json:"enable_mcp"`
		} `json:"user_settings"`
		Stream bool `json:"stream"` // New field for streaming request
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("Failed to decode request: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.SessionID == "" || req.Message == "" {
		http.Error(w, "session_id and message are required", http.StatusBadRequest)
		return
	}

	clientID := getClientID(r)
	sm := cs.GetSessionManager(clientID)

	log.Printf("Chat request for session %s: %s (stream: %v)", req.SessionID, req.Message, req.Stream)

	// Verify session exists
	_, err := sm.GetSession(req.SessionID)
	if err != nil {
		log.Printf("Session not found: %s", req.SessionID)
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	// Get or create agent for this session
	agent, err := cs.GetOrCreateAgent(req.SessionID)
	if err != nil {
		log.Printf("Failed to create agent: %v", err)
		http.Error(w, fmt.Sprintf("Failed to create agent: %v", err), http.StatusInternalServerError)
		return
	}

	// Add user message to history
	_, _ = sm.AddMessage(req.SessionID, "user", req.Message)

	// Use user settings directly
	enableSkills := req.UserSettings.EnableSkills
	enableMCP := req.UserSettings.EnableMCP

	log.Printf("Tool settings for session %s - Skills: %v, MCP: %v",
		req.SessionID, enableSkills, enableMCP)

	if req.Stream {
		// Handle streaming response
		cs.HandleChatStream(w, r, agent, req.SessionID, req.Message, enableSkills, enableMCP)
	} else {
		// Handle non-streaming response (original behavior)
		cs.HandleChatNonStream(w, r, agent, req.SessionID, req.Message, enableSkills, enableMCP)
	}
}

// HandleChatNonStream handles non-streaming chat responses (original behavior)
func (cs *ChatServer) HandleChatNonStream(w http.ResponseWriter, r *http.Request, agent ChatAgent, sessionID, message string, enableSkills, enableMCP bool) {
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	response, err := agent.Chat(ctx, message, enableSkills, enableMCP)
	if err != nil {
		log.Printf("Chat error for session %s: %v", sessionID, err)
		http.Error(w, fmt.Sprintf("Chat failed: %v", err), http.StatusInternalServerError)
		return
	}

	log.Printf("Chat response for session %s: %s", sessionID, response)

	// Add assistant response to history
	clientID := getClientID(r)
	sm := cs.GetSessionManager(clientID)
	msgID, _ := sm.AddMessage(sessionID, "assistant", response)

	// Send response
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"response":   response,
		"message_id": msgID,
	})
}

// HandleChatStream handles streaming chat responses using SSE
func (cs *ChatServer) HandleChatStream(w http.ResponseWriter, r *http.Request, agent ChatAgent, sessionID, message string, enableSkills, enableMCP bool) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	// Get a flusher
	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Printf("Streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	clientID := getClientID(r)
	sm := cs.GetSessionManager(clientID)

	// Send initial event
	fmt.Fprintf(w, "event: start\ndata: {\"type\": \"start\"}\n\n")
	flusher.Flush()

	// Create a streaming response collector
	var responseBuilder strings.Builder

	// Get the full response from agent
	response, err := agent.Chat(ctx, message, enableSkills, enableMCP)
	if err != nil {
		fmt.Fprintf(w, "event: error\ndata: {\"type\": \"error\", \"error\": %q}\n\n", err.Error())
		flusher.Flush()
		return
	}

	// Simulate streaming by sending chunks
	// Use runes to avoid splitting UTF-8 characters
	runes := []rune(response)
	chunkSize := 5 // Send 5 runes at a time (better for multi-byte characters)
	for i := 0; i < len(runes); i += chunkSize {
		select {
		case <-ctx.Done():
			// Context cancelled, send end event with partial response
			partialData := map[string]any{
				"type":    "end",
				"message": responseBuilder.String(),
			}
			jsonPartialData, _ := json.Marshal(partialData)
			fmt.Fprintf(w, "event: end\ndata: %s\n\n", jsonPartialData)
			flusher.Flush()
			return
		default:
			end := i + chunkSize
			if end > len(runes) {
				end = len(runes)
			}

			chunk := string(runes[i:end])
			responseBuilder.WriteString(chunk)

			// Send chunk event
			data := map[string]any{
				"type":  "chunk",
				"chunk": chunk,
				"index": i,
			}
			jsonData, _ := json.Marshal(data)
			fmt.Fprintf(w, "event: chunk\ndata: %s\n\n", jsonData)
			flusher.Flush()

			// Small delay to simulate streaming
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Save the complete response to history
	msgID, _ := sm.AddMessage(sessionID, "assistant", response)

	// Send end event
	endData := map[string]any{
		"type":       "end",
		"message":    response,
		"message_id": msgID,
	}
	jsonEndData, _ := json.Marshal(endData)
	fmt.Fprintf(w, "event: end\ndata: %s\n\n", jsonEndData)
	flusher.Flush()
}

// HandleGetClientID returns the client ID for the current user
func (cs *ChatServer) HandleGetClientID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientID := getClientID(r)

	// Set client ID cookie if not already set
	_, err := r.Cookie("client_id")
	if err != nil {
		http.SetCookie(w, &http.Cookie{
			Name:     "client_id",
			Value:    clientID,
			Path:     "/",
			MaxAge:   86400 * 30, // 30 days
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"client_id": clientID,
	})
}

// HandleMCPTools returns the list of available MCP tools
func (cs *ChatServer) HandleMCPTools(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	// Get or create agent for this session
	agent, err := cs.GetOrCreateAgent(sessionID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get agent: %v", err), http.StatusInternalServerError)
		return
	}

	// Cast to SimpleChatAgent to access MCP methods
	simpleAgent, ok := agent.(*SimpleChatAgent)
	if !ok {
		http.Error(w, "Agent does not support MCP", http.StatusInternalServerError)
		return
	}

	tools := simpleAgent.GetAvailableTools()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"tools":   tools,
		"enabled": simpleAgent.toolsEnabled,
	})
}

// HandleToolsHierarchical returns tools in a hierarchical structure
func (cs *ChatServer) HandleToolsHierarchical(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	// Get or create agent for this session
	agent, err := cs.GetOrCreateAgent(sessionID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get agent: %v", err), http.StatusInternalServerError)
		return
	}

	// Cast to SimpleChatAgent
	simpleAgent, ok := agent.(*SimpleChatAgent)
	if !ok {
		http.Error(w, "Agent does not support tools", http.StatusInternalServerError)
		return
	}

	// Prepare hierarchical data
	var result struct {
		Skills       []map[string]any `json:"skills"`
		MCPTools     []map[string]any `json:"mcp_tools"`
		Enabled      bool             `json:"enabled"`
		ToolsLoading bool             `json:"tools_loading"`
		ToolsLoaded  bool             `json:"tools_loaded"`
	}

	// Lock for reading skills and MCP tools
	simpleAgent.mu.RLock()
	result.Enabled = simpleAgent.toolsEnabled
	result.ToolsLoading = simpleAgent.toolsLoading
	result.ToolsLoaded = simpleAgent.toolsLoaded
	skills := make([]SkillInfo, len(simpleAgent.skills))
	copy(skills, simpleAgent.skills)
	mcpTools := make([]tools.Tool, len(simpleAgent.mcpTools))
	copy(mcpTools, simpleAgent.mcpTools)
	simpleAgent.mu.RUnlock()

	// Add skills with their tools
	for _, skill := range skills {
		skillData := map[string]any{
			"name":        skill.Name,
			"description": skill.Description,
			"tools":       []map[string]any{},
		}

		// Get tools for this skill if already loaded
		if skill.Loaded && len(skill.Tools) > 0 {
			for _, tool := range skill.Tools {
				skillData["tools"] = append(skillData["tools"].([]map[string]any), map[string]any{
					"name":        tool.Name(),
					"description": tool.Description(),
				})
			}
		} else {
			// Load tools on demand
			if tools, err := simpleAgent.loadSkillTools(skill.Name); err == nil {
				for _, tool := range tools {
					skillData["tools"] = append(skillData["tools"].([]map[string]any), map[string]any{
						"name":        tool.Name(),
						"description": tool.Description(),
					})
				}
			}
		}

		result.Skills = append(result.Skills, skillData)
	}

	// Add MCP tools (group them by category if possible, or list them individually)
	mcpGroups := make(map[string][]map[string]any)
	for _, tool := range mcpTools {
		toolName := tool.Name()
		desc := tool.Description()

		// Try to extract category from tool name (e.g., "puppeteer__puppeteer_navigate" -> "Puppeteer")
		parts := strings.Split(toolName, "__")
		var category string
		if len(parts) >= 2 {
			// Convert first letter to uppercase
			category = strings.ToUpper(parts[0][:1]) + strings.ToLower(parts[0][1:])
		} else {
			category = "Other"
		}

		mcpGroups[category] = append(mcpGroups[category], map[string]any{
			"name":        toolName,
			"description": desc,
		})
	}

	// Convert groups to array
	for category, tools := range mcpGroups {
		result.MCPTools = append(result.MCPTools, map[string]any{
			"category":    category,
			"description": fmt.Sprintf("%s tools", category),
			"tools":       tools,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// HandleFeedback handles message feedback (like/dislike)
func (cs *ChatServer) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		MessageID string `json:"message_id"`
		Feedback  string `json:"feedback"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	clientID := getClientID(r)
	sm := cs.GetSessionManager(clientID)

	err := sm.UpdateMessageFeedback(req.SessionID, req.MessageID, req.Feedback)
	if err != nil {
		log.Printf("Failed to update feedback: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleConfig returns the chat configuration
func (cs *ChatServer) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"chatTitle":      cs.config.ChatTitle,
		"appLogo":        cs.config.AppLogo,
		"enableFeedback": cs.config.EnableFeedback,
	})
}

// Close gracefully shuts down the server and cleans up all resources
func (cs *ChatServer) Close() error {
	log.Printf("Shutting down chat server...")

	cs.agentMu.Lock()
	defer cs.agentMu.Unlock()

	// Close all agents with error collection
	var closeErrors []error
	for sessionID, agent := range cs.agents {
		log.Printf("Closing agent for session %s", sessionID)
		if simpleAgent, ok := agent.(*SimpleChatAgent); ok {
			if err := simpleAgent.Close(); err != nil {
				log.Printf("Error closing agent for session %s: %v", sessionID, err)
				closeErrors = append(closeErrors, fmt.Errorf("session %s: %w", sessionID, err))
			}
		}
	}

	// Clear agents map
	cs.agents = make(map[string]ChatAgent)

	if len(closeErrors) > 0 {
		log.Printf("Chat server shutdown completed with %d errors", len(closeErrors))
		// Return first error but log all
		return closeErrors[0]
	}

	log.Printf("Chat server shutdown complete")
	return nil
}

// Start starts the HTTP server
func (cs *ChatServer) Start(staticFS fs.FS) error {
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		cs.HandleIndex(w, r, staticFS)
	})
	http.HandleFunc("/api/client-id", cs.HandleGetClientID)
	http.HandleFunc("/api/sessions/new", cs.HandleNewSession)
	http.HandleFunc("/api/sessions", cs.HandleListSessions)
	http.HandleFunc("/api/sessions/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if strings.HasSuffix(path, "/history") {
			cs.HandleGetHistory(w, r)
		} else if r.Method == http.MethodDelete {
			cs.HandleDeleteSession(w, r)
		} else {
			http.NotFound(w, r)
		}
	})
	http.HandleFunc("/api/chat", cs.HandleChat)
	http.HandleFunc("/api/feedback", cs.HandleFeedback)
	http.HandleFunc("/api/mcp/tools", cs.HandleMCPTools)
	http.HandleFunc("/api/tools/hierarchical", cs.HandleToolsHierarchical)
	http.HandleFunc("/api/config", cs.HandleConfig)

	// Serve static files from embedded filesystem
	staticSubFS, err := fs.Sub(staticFS, "static")
	if err != nil {
		return fmt.Errorf("failed to create sub filesystem: %w", err)
	}
	http.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSubFS))))

	addr := ":" + cs.port
	log.Printf("🌐 HTTP server listening on http://localhost%s", addr)
	return http.ListenAndServe(addr, nil)
}

// getSkillsOverview returns a formatted string of available skills (name and description only)
func (a *SimpleChatAgent) getSkillsOverview() string {
	if len(a.skills) == 0 {
		return ""
	}

	var info strings.Builder
	info.WriteString("Available Skills:\n\n")

	for _, skill := range a.skills {
		info.WriteString(fmt.Sprintf("- %s: %s\n", skill.Name, skill.Description))
	}

	return info.String()
}

// loadSkillTools loads and caches tools for a specific skill
func (a *SimpleChatAgent) loadSkillTools(skillName string) ([]tools.Tool, error) {
	// Find the skill
	for i := range a.skills {
		if strings.EqualFold(a.skills[i].Name, skillName) {
			if !a.skills[i].Loaded {
				// Convert skill to tools
				skillTools, err := adaptergoskills.SkillsToTools(a.skills[i].Package)
				if err != nil {
					return nil, fmt.Errorf("failed to convert skill '%s' to tools: %w", skillName, err)
				}
				a.skills[i].Tools = skillTools
				a.skills[i].Loaded = true
				log.Printf("Loaded %d tools from skill '%s'", len(skillTools), skillName)
			}
			return a.skills[i].Tools, nil
		}
	}
	return nil, fmt.Errorf("skill '%s' not found", skillName)
}

// selectSkillForTask uses LLM to determine which skill (if any) should be used for the task
func (a *SimpleChatAgent) selectSkillForTask(ctx context.Context, message string) (string, error) {
	if len(a.skills) == 0 {
		return "", nil // No skills available
	}

	skillsOverview := a.getSkillsOverview()

	skillPrompt := fmt.Sprintf(`Based on the user's message, determine if any of the available skills should be used to help with this task.

%s

User message: %s

Respond with a JSON object:
- If no skill is needed: {"use_skill": false, "reason": "reason why no skill is needed"}
- If a skill is needed: {"use_skill": true, "skill_name": "exact skill name", "reason": "why this skill is appropriate"}

IMPORTANT:
- Return ONLY valid JSON
- Do NOT use markdown code fences
- Do NOT use `+"```json"+` wrapper
- Choose the skill that best matches the user's needs`, skillsOverview, message)

	// Create LLM call for skill selection
	skillMsg := []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextPart("You are a helpful assistant that selects appropriate skills for tasks. Respond only with valid JSON.")}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(skillPrompt)}},
	}

	response, err := a.llm.GenerateContent(ctx, skillMsg)
	if err != nil {
		return "", fmt.Errorf("LLM call failed for skill selection: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}

	decision := response.Choices[0].Content
	log.Printf("Skill selection decision: %s", decision)

	// Clean up the decision
	cleanDecision := strings.TrimSpace(decision)
	if strings.HasPrefix(cleanDecision, "```json") {
		cleanDecision = strings.TrimPrefix(cleanDecision, "```json")
		cleanDecision = strings.TrimSuffix(cleanDecision, "```")
		cleanDecision = strings.TrimSpace(cleanDecision)
	} else if strings.HasPrefix(cleanDecision, "```") {
		cleanDecision = strings.TrimPrefix(cleanDecision, "```")
		cleanDecision = strings.TrimSuffix(cleanDecision, "```")
		cleanDecision = strings.TrimSpace(cleanDecision)
	}

	// Parse the decision
	var skillDecision struct {
		UseSkill  bool   `json:"use_skill"`
		SkillName string `json:"skill_name"`
		Reason    string `json:"reason"`
	}

	if err := json.Unmarshal([]byte(cleanDecision), &skillDecision); err != nil {
		return "", fmt.Errorf("failed to parse skill decision: %w", err)
	}

	if skillDecision.UseSkill {
		log.Printf("Selected skill '%s' because: %s", skillDecision.SkillName, skillDecision.Reason)
		return skillDecision.SkillName, nil
	}

	log.Printf("No skill selected: %s", skillDecision.Reason)
	return "", nil
}

// selectToolForTask uses LLM to determine which tool should be used
func (a *SimpleChatAgent) selectToolForTask(ctx context.Context, message string, availableTools []tools.Tool) (*tools.Tool, map[string]any, error) {
	if len(availableTools) == 0 {
		return nil, nil, nil // No tools available
	}

	// Build tools info
	var toolsInfo strings.Builder
	for _, tool := range availableTools {
		toolsInfo.WriteString(fmt.Sprintf("- %s: %s\n", tool.Name(), tool.Description()))
	}

	toolPrompt := fmt.Sprintf(`Based on the user's message, determine which tool should be used.

Available tools:
%s

User message: %s

Respond with a JSON object:
- If no tool is needed: {"use_tool": false, "reason": "reason why no tool is needed"}
- If a tool is needed: {"use_tool": true, "tool_name": "exact tool name", "args": {parameter: "value"}, "reason": "why this tool is appropriate"}

IMPORTANT:
- Return ONLY valid JSON
- Do NOT use markdown code fences
- Do NOT use `+"```json"+` wrapper
- Select the tool that can best accomplish the user's request`, toolsInfo.String(), message)

	// Create LLM call for tool selection
	toolMsg := []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextPart("You are a helpful assistant that selects appropriate tools for tasks. Respond only with valid JSON.")}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(toolPrompt)}},
	}

	response, err := a.llm.GenerateContent(ctx, toolMsg)
	if err != nil {
		return nil, nil, fmt.Errorf("LLM call failed for tool selection: %w", err)
	}

	if len(response.Choices) == 0 {
		return nil, nil, fmt.Errorf("no response from LLM")
	}

	decision := response.Choices[0].Content
	log.Printf("Tool selection decision: %s", decision)

	// Clean up the decision
	cleanDecision := strings.TrimSpace(decision)
	if strings.HasPrefix(cleanDecision, "```json") {
		cleanDecision = strings.TrimPrefix(cleanDecision, "```json")
		cleanDecision = strings.TrimSuffix(cleanDecision, "```")
		cleanDecision = strings.TrimSpace(cleanDecision)
	} else if strings.HasPrefix(cleanDecision, "```") {
		cleanDecision = strings.TrimPrefix(cleanDecision, "```")
		cleanDecision = strings.TrimSuffix(cleanDecision, "```")
		cleanDecision = strings.TrimSpace(cleanDecision)
	}

	// Parse the decision
	var toolDecision struct {
		UseTool  bool           `json:"use_tool"`
		ToolName string         `json:"tool_name"`
		Args     map[string]any `json:"args"`
		Reason   string         `json:"reason"`
	}

	if err := json.Unmarshal([]byte(cleanDecision), &toolDecision); err != nil {
		return nil, nil, fmt.Errorf("failed to parse tool decision: %w", err)
	}

	if toolDecision.UseTool {
		// Find the selected tool
		for _, tool := range availableTools {
			if strings.EqualFold(tool.Name(), toolDecision.ToolName) {
				log.Printf("Selected tool '%s' because: %s", toolDecision.ToolName, toolDecision.Reason)
				return &tool, toolDecision.Args, nil
			}
		}
		return nil, nil, fmt.Errorf("tool '%s' not found in available tools", toolDecision.ToolName)
	}

	log.Printf("No tool selected: %s", toolDecision.Reason)
	return nil, nil, nil
}
