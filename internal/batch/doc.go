// Package batch — клиент очереди PBS через утилиты qsub, qstat и qdel.
//
// Все задачи Surveyor отправляются с одним именем (-N JobPrefix); учитываются
// только задачи, чьё имя начинается с этого префикса. stderr и stdout задач
// пишутся в LogDir под именами <prefix>.e<номер> и <prefix>.o<номер>.
package batch
