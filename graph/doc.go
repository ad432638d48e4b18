// Package graph provides the core graph construction and execution engine for LangGraph Go.
//
// This package implements the fundamental building blocks for creating stateful, multi-agent applications
// using directed graphs. It offers both untyped and typed interfaces for building workflows,
// with support for parallel execution, checkpointing, streaming, and comprehensive event handling.
//
// # Core Concepts
//
// ## StateGraph
// The primary component for building graphs is StateGraph, which maintains state as it flows
// through nodes. Each node can process and transform the state before passing it to the next node
// based on defined edges.
//
// ## Nodes and Edges
// Nodes represent processing units (functions, agents, tools) that transform state.
// Edges define the flow between nodes, supporting conditional routing based on state content.
//
// ## Typed Support
// StateGraph[S] is generic over its state type S, so node functions, conditional edges and
// the result of Invoke are checked against S at compile time.
//
// # Key Features
//
//   - Parallel node execution with coordination
//   - Checkpointing for durable execution with resume capability
//   - Streaming for real-time event monitoring
//   - Comprehensive listener system for observability
//   - Built-in retry mechanisms with configurable policies
//   - Subgraph composition for modular design
//   - Graph visualization (Mermaid, DOT, ASCII)
//   - Interrupt support for human-in-the-loop workflows
//
// # Example Usage
//
// ## Basic State Graph
//
//	g := graph.NewStateGraph[map[string]any]()
//
//	// Add nodes
//	g.AddNode("process", "Mark the state processed", func(ctx context.Context, state map[string]any) (map[string]any, error) {
//		// Process the state
//		state["processed"] = true
//		return state, nil
//	})
//
//	g.AddNode("validate", "Validate the processed state", func(ctx context.Context, state map[string]any) (map[string]any, error) {
//		// Validate the processed state
//		if state["processed"].(bool) {
//			state["valid"] = true
//		}
//		return state, nil
//	})
//
//	// Set entry point and edges
//	g.SetEntryPoint("process")
//	g.AddEdge("process", "validate")
//	g.AddEdge("validate", graph.END)
//
//	// Compile and run
//	runnable, err := g.Compile()
//	result, err := runnable.Invoke(context.Background(), map[string]any{
//		"data": "example",
//	})
//
// ## Typed State Graph
//
//	type WorkflowState struct {
//		Input    string `json:"input"`
//		Output   string `json:"output"`
//		Complete bool   `json:"complete"`
//	}
//
//	g := graph.NewStateGraph[WorkflowState]()
//
//	g.AddNode("process", "Upper-case the input", func(ctx context.Context, state WorkflowState) (WorkflowState, error) {
//		state.Output = strings.ToUpper(state.Input)
//		state.Complete = true
//		return state, nil
//	})
//
//	// Conditional routing
//	g.AddConditionalEdge("process", func(ctx context.Context, state WorkflowState) string {
//		if state.Complete {
//			return "next"
//		}
//		return "retry"
//	})
//
// ## Parallel Execution
//
//	ug := graph.NewStateGraphUntyped()
//	ug.AddParallelNodes("parallel_tasks", map[string]func(context.Context, any) (any, error){
//		"task1": task1Func,
//		"task2": task2Func,
//	})
//
// ## Checkpointing
//
//	cg := graph.NewCheckpointableStateGraphWithConfig(graph.CheckpointConfig{
//		Store:    graph.NewMemoryCheckpointStore(),
//		AutoSave: true,
//	})
//	// ... add nodes and edges to cg ...
//
//	// Compile and execute
//	runnable, err := cg.CompileCheckpointable()
//	result, err := runnable.Invoke(context.Background(), initialState)
//
//	// Resume from a saved checkpoint
//	resumed, err := runnable.ResumeFromCheckpoint(context.Background(), checkpointID)
//
// ## Streaming
//
//	sg := graph.NewStreamingStateGraphWithConfig(graph.StreamConfig{
//		BufferSize: 100,
//		Mode:       graph.StreamModeDebug,
//	})
//	// ... add nodes and edges to sg ...
//
//	runnable, err := sg.CompileStreaming()
//	result := runnable.Stream(context.Background(), initialState)
//
//	// Process events
//	for event := range result.Events {
//		fmt.Printf("Event: %v\n", event)
//	}
//
// # Listener System
//
// The package provides listeners for monitoring and reacting to graph events:
//
//   - StreamingListener: Forwards events to the channels of a StreamResult
//   - CheckpointListener: Saves checkpoints after graph steps
//   - Custom listeners: Implement NodeListener (or NodeListenerTyped[S]), or wrap a
//     function with NodeListenerFunc
//
// # Error Handling
//
//   - Built-in retry policies with exponential backoff
//   - Custom error filtering for selective retries
//   - Interrupt handling for pausing execution
//   - Comprehensive error context in events
//
// # Visualization
//
// Export graphs for documentation and debugging:
//
//	exporter := graph.NewExporter(g)
//
//	// Mermaid diagram
//	mermaid := exporter.DrawMermaidWithOptions(graph.MermaidOptions{
//		Direction: "TD",
//	})
//
//	// Graphviz DOT and an ASCII tree
//	dot := exporter.DrawDOT()
//	ascii := exporter.DrawASCII()
//
// # Thread Safety
//
// All graph structures are thread-safe for read operations. Write operations (adding nodes,
// edges, or listeners) should be performed before compilation or protected by external synchronization.
//
// # Best Practices
//
//  1. Use typed graphs when possible for better type safety
//  2. Set appropriate buffer sizes for streaming to balance memory and performance
//  3. Implement proper error handling in node functions
//  4. Use checkpoints for long-running or critical workflows
//  5. Add listeners for debugging and monitoring
//  6. Keep node functions pure and stateless when possible
//  7. Use conditional edges for complex routing logic
//  8. Leverage parallel execution for independent tasks
package graph
