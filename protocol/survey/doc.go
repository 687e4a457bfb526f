// Package survey implements the Surveyor/Respondent scalability
// protocols: Surveyor0 broadcasts a survey with a fresh survey id and
// collects responses for survey_time before timing out further recv
// calls, and Respondent0 is symmetric to Rep0 with survey-id routing
// instead of request-id routing, per spec.md section 4.6.5.
package survey
