package services

import "ancient-spinner-backend/internal/models"

type Broadcaster interface {
	BroadcastTxStatus(wallet string, update models.TxStatusUpdate)
	BroadcastSpinResult(wallet string, result *SpinResult)
	BroadcastSession(wallet string, session *SessionView)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastTxStatus(string, models.TxStatusUpdate) {}
func (nopBroadcaster) BroadcastSpinResult(string, *SpinResult)         {}
func (nopBroadcaster) BroadcastSession(string, *SessionView)           {}
