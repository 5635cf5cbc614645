// Package notify implements the notification gateway of spec §4.9/§6:
// a Unix-domain line socket to the execution agent (fire-and-forget,
// OARRUNJOB_<jid>/ChState/Qsub/Term) and a dial-per-message TCP
// transport to interactive clients (GOOD RESERVATION/BAD JOB/start
// prediction/verbatim error).
package notify
