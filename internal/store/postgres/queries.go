package postgres

const queryInsertDecision = `
INSERT INTO decisions (id, run_id, kind, scheduled_at, evaluated_at, delay_seconds, threshold_seconds, outcome, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

const decisionColumns = `
    id, run_id, kind, scheduled_at, evaluated_at,
    delay_seconds, threshold_seconds, outcome, reason, created_at
`

const queryGetDecisionsByRunID = `
SELECT` + decisionColumns + `
FROM decisions
WHERE run_id = $1
ORDER BY evaluated_at DESC, id
LIMIT $2 OFFSET $3
`

const queryGetDecisionsByRunIDAndOutcome = `
SELECT` + decisionColumns + `
FROM decisions
WHERE run_id = $1 AND outcome = $2
ORDER BY evaluated_at DESC, id
LIMIT $3 OFFSET $4
`

const queryListDecisions = `
SELECT` + decisionColumns + `
FROM decisions
ORDER BY evaluated_at DESC, id
LIMIT $1 OFFSET $2
`

const queryListDecisionsByOutcome = `
SELECT` + decisionColumns + `
FROM decisions
WHERE outcome = $1
ORDER BY evaluated_at DESC, id
LIMIT $2 OFFSET $3
`

// queryProbeDecisionsTable fails when the decisions migration has not been applied.
const queryProbeDecisionsTable = `
SELECT threshold_seconds FROM decisions LIMIT 1
`
