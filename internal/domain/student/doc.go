// Package student содержит доменную модель студента, чью активность
// система отслеживает на Codeforces.
//
// Пакет определяет:
//
//   - Сущности: Student, Contest, Submission, Problem
//   - Value Objects: Handle
//   - Stats Engine: FilterByWindow, AcceptedInWindow, ComputeProblemStats
//   - Правило неактивности: InactivityPolicy
//   - Интерфейсы: Repository, Cache, SyncLock
//
// # Синхронизация
//
// История контестов и посылок всегда заменяется целиком. Инкрементального
// слияния нет: статистика рассчитывает на то, что хранится полная история.
//
//	s.ReplaceContests(contests)      // пересчёт рейтингов, если список не пуст
//	s.ReplaceSubmissions(subs)       // отбрасывает посылки без задачи, считает LastActivity
//	s.MarkSynced(now)
//
// # Статистика
//
//	stats := ComputeProblemStats(s, 30, now)
//	stats.TotalSolved  // уникальные задачи по (contestId, index)
//	stats.AvgRating    // среднее по задачам с рейтингом, 0 если таких нет
//
// # Неактивность
//
//	policy := DefaultInactivityPolicy()
//	inactive := policy.Classify(all, now)
package student
