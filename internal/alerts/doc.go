// Package alerts evaluates operator notification rules against computed test
// results and delivers webhooks to Teams, Slack or generic HTTP targets.
//
// Rules are "field op value" expressions over a result, for example
// "dropped_rows > 10", "min_lethality < 18" or "status == Non-Compliant".
// They express site policy on top of the certificate verdict, such as how
// many dropped rows an operator should review before a certificate is issued.
package alerts
