package decompose

// decompositionPrompt is the prompt template for task decomposition.
const decompositionPrompt = `Break this task into 2-6 subtasks that can be executed by separate workers.

Task:
%s

Return ONLY a JSON array with this exact structure (no other text):
[
  {
    "description": "What this subtask must accomplish",
    "capability": "coding|reasoning|creative|review|classification|extraction|simple-reasoning",
    "mode": "inline|agent",
    "depends_on": [0, 1]
  }
]

Rules:
- depends_on lists the 0-based indices of subtasks that must finish first
- A subtask may only depend on EARLIER entries (lower indices); no cycles
- Use an empty array [] when a subtask has no dependencies
- Prefer independent subtasks so they can run in parallel
- Use "inline" mode for work a single completion can finish
- Pick the capability that best matches the work`
