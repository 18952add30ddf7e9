package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
)

// videoState is the outbound video channel. Exactly one of live (when mode
// is not Disabled) or placeholder is attached to sender.
type videoState struct {
	mode        domain.VideoMode
	sender      core.TrackSender
	placeholder core.LocalTrack
	live        core.LocalTrack
	unsubscribe func()
}

func (s *Session) setMode(m domain.VideoMode) {
	s.video.mode = m
	s.modeView.Store(int32(m))
}

func (s *Session) handleVideo(cmd videoCmd) error {
	if !cmd.enable {
		if s.video.mode != cmd.target {
			return nil
		}
		s.revertToPlaceholder()
		return nil
	}

	if s.phase != domain.PhaseEstablished || s.video.sender == nil {
		return ErrNotConnected
	}
	if s.video.mode == cmd.target {
		return nil
	}

	switching := s.video.mode != domain.VideoDisabled
	if switching {
		// The old source goes first; its track stays bound until the new one is in.
		s.log.Info().Str("from", s.video.mode.String()).Str("to", cmd.target.String()).Msg("switching video source")
		s.releaseLive()
	}

	track, err := s.acquireVideo(cmd.ctx, cmd.target)
	if err == nil {
		err = s.video.sender.ReplaceTrack(track)
		if err != nil {
			track.Stop()
			err = fmt.Errorf("attach %s: %w", cmd.target, err)
		}
	} else {
		err = fmt.Errorf("%w: %w", ErrMediaAcquisition, err)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("mode", cmd.target.String()).Msg("video source not enabled")
		if switching {
			s.attachPlaceholder()
		}
		return err
	}

	s.video.live = track
	gen := s.gen
	s.video.unsubscribe = track.OnEnded(func(err error) {
		s.post(videoEnded{gen: gen, track: track, err: err})
	})
	s.setMode(cmd.target)
	s.log.Info().Str("mode", cmd.target.String()).Str("track_id", track.ID()).Msg("video source enabled")
	s.applyBitrate()
	s.announce()
	return nil
}

func (s *Session) acquireVideo(ctx context.Context, m domain.VideoMode) (core.LocalTrack, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if m == domain.VideoScreenShare {
		return s.capture.AcquireScreen(ctx)
	}
	return s.capture.AcquireCamera(ctx)
}

// revertToPlaceholder attaches the placeholder, then releases the live source.
func (s *Session) revertToPlaceholder() {
	if s.video.mode == domain.VideoDisabled {
		return
	}
	s.attachPlaceholder()
	s.releaseLive()
}

func (s *Session) attachPlaceholder() {
	if s.video.sender != nil && s.video.placeholder != nil {
		if err := s.video.sender.ReplaceTrack(s.video.placeholder); err != nil {
			s.log.Warn().Err(err).Msg("placeholder not attached")
		}
	}
	s.setMode(domain.VideoDisabled)
	s.log.Info().Msg("video disabled")
	s.announce()
}

// releaseLive unsubscribes from and stops the live capture source.
func (s *Session) releaseLive() {
	if s.video.unsubscribe != nil {
		s.video.unsubscribe()
		s.video.unsubscribe = nil
	}
	if s.video.live != nil {
		s.video.live.Stop()
		s.video.live = nil
	}
}

func (s *Session) onVideoEnded(track core.LocalTrack, err error) {
	if s.video.live != track {
		return
	}
	s.log.Warn().Err(err).Str("mode", s.video.mode.String()).Msg("video source ended")
	s.revertToPlaceholder()
}

func (s *Session) applyBitrate() {
	if s.video.sender == nil || s.opts.MaxVideoBitrateBPS <= 0 {
		return
	}
	if err := s.video.sender.SetMaxBitrate(s.opts.MaxVideoBitrateBPS); err != nil {
		s.log.Warn().Err(err).Int("bps", s.opts.MaxVideoBitrateBPS).Msg("bitrate cap not applied")
	}
}

// announce tells the server whether real video is being sent.
func (s *Session) announce() {
	if s.signal == nil {
		return
	}
	if err := s.send(core.ModeEnvelope(s.video.mode.Active())); err != nil {
		s.log.Warn().Err(err).Msg("mode not announced")
	}
}

func (s *Session) debugInfo() domain.DebugInfo {
	info := domain.DebugInfo{
		Phase:     s.phase.String(),
		Sending:   []domain.SendingInfo{},
		Receiving: []domain.ReceivingInfo{},
	}
	if s.peer == nil {
		return info
	}
	for _, tr := range s.peer.Transceivers() {
		if tr.Sending {
			mode := tr.Kind
			if tr.Kind == "video" {
				mode = s.video.mode.String()
			}
			info.Sending = append(info.Sending, domain.SendingInfo{MID: tr.MID, Kind: tr.Kind, Mode: mode})
		}
		if tr.Receiving {
			info.Receiving = append(info.Receiving, domain.ReceivingInfo{
				MID:     tr.MID,
				Kind:    tr.Kind,
				TrackID: tr.TrackID,
				Packets: tr.Packets,
			})
		}
	}
	return info
}
