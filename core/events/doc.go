// Package events defines the typed orchestration event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - turn_state.*
//   - response.*
//   - playback.*
//   - voice_mode.*
//
// Semantics used across the package:
//
//   - Sentence: one ordered, speakable text unit derived from a streamed
//     response; emitted strictly in source index order.
//   - Started/Ended: lifecycle boundaries; for playback they are paired,
//     every started sentence eventually reports ended.
//   - Tick: periodic countdown update while the cooldown window is open.
//
// turn_state events
//
//   - TurnStarted (turn_state.started): a new streamed response turn began.
//   - TurnCompleted (turn_state.completed): the current turn's stream ended.
//   - TurnCancelled (turn_state.cancelled): the current turn was superseded
//     or explicitly cancelled.
//
// response events
//
//   - SentenceReady (response.sentence_ready): the reassembler released the
//     next in-order sentence unit.
//
// playback events
//
//   - SpeakingStarted (playback.speaking_started): audio output for a queued
//     task began emitting.
//   - SpeakingEnded (playback.speaking_ended): audio output for a queued task
//     finished (success, error or cancellation).
//
// voice_mode events
//
//   - VoiceModeChanged (voice_mode.state_changed): the arbitrator moved to a
//     new state.
//   - CooldownTick (voice_mode.cooldown_tick): remaining settle time before
//     capture resumes; emitted once per scheduler tick while cooling.
package events
