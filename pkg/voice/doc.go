// Package voice runs one conversation turn at a time: transcribe a
// recorded utterance, stream a generated reply, cut it into sentences,
// synthesize each sentence and play it while later sentences are still
// being generated.
//
// # Usage
//
//	p, err := voice.New(voice.DefaultConfig(), voice.Deps{
//	    STT:  sttProvider,
//	    LLM:  inference.NewFallback(llm, "gpt-4.1-mini", logger),
//	    TTS:  tts.NewFallback(primary, alternate, logger),
//	    Sink: sink,
//	    Callbacks: voice.Callbacks{
//	        OnReplyChunk: func(turnID, text string) { fmt.Print(text) },
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := p.RunTurn(ctx, voice.Utterance{Path: "/tmp/rec.wav"})
//	if errors.Is(err, voice.ErrBusy) {
//	    // another turn is in flight; the recording has been deleted
//	}
//
// # Failure policy
//
// Nothing inside a turn is fatal. A failed transcription is handled like
// silence, a failed generation is replaced by a spoken apology, and a
// sentence that cannot be synthesized is skipped. Whether a failed turn
// also ends the conversation is controlled by Config.EndOnFailure.
//
// # Latency Metrics
//
// Every turn records per-stage latency measured from the moment the
// utterance was accepted:
//
//	m := p.Metrics().Current()
//	fmt.Println(m.FormatLatency()) // 412ms STT | 903ms LLM | 1.2s TTS | 3.4s TOTAL
package voice
